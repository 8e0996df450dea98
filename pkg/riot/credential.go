package riot

// Credential is an API key. Each credential owns an independent rate-limit budget.
type Credential string

// maskedPrefix is how many leading characters survive masking.
const maskedPrefix = 5

// Masked returns a log-safe label for the credential.
func (c Credential) Masked() string {
	if len(c) <= maskedPrefix {
		return "*****"
	}
	return string(c[:maskedPrefix]) + "..."
}

// String implements fmt.Stringer with the masked form so credentials never
// leak through %v formatting.
func (c Credential) String() string {
	return c.Masked()
}

// SeedIdentity is a stage-1 work item: one high-tier player as seen by the
// credential that owns it.
type SeedIdentity struct {
	Platform   Platform
	Credential Credential
	SummonerID string
}

package policy

// Recipient represents a potential envelope recipient, allows policies for it to be queried.
type Recipient struct {
	// Address is the recipient as given in RCPT TO.
	Address    string
	addrPolicy *Addressing
	// LocalPart is the part of the address before @, including +tag.
	LocalPart string
	// Domain is the lower-cased part of the address after @.
	Domain string
	// Alias is the account alias this recipient addresses.
	Alias string
}

// ShouldAccept returns true if the relay should accept mail for this recipient.
func (r *Recipient) ShouldAccept() bool {
	return r.addrPolicy.ShouldAcceptDomain(r.Domain)
}

package setup

// Merge fills empty fields of c from saved. Fields already populated in c are never
// overwritten, and SelectedSteps always keeps the current run's value.
func (c *Context) Merge(saved *Context) {
	if saved == nil {
		return
	}

	mergeString(&c.Domain, saved.Domain)
	mergeString(&c.Passphrase, saved.Passphrase)
	mergeString(&c.AdminEmail, saved.AdminEmail)
	mergeString(&c.AdminPassword, saved.AdminPassword)
	if c.IncludeDemoApp == nil && saved.IncludeDemoApp != nil {
		v := *saved.IncludeDemoApp
		c.IncludeDemoApp = &v
	}

	mergeString(&c.ComputeToken, saved.ComputeToken)
	mergeString(&c.DatabaseAPIKey, saved.DatabaseAPIKey)
	mergeString(&c.EmailAPIKey, saved.EmailAPIKey)
	mergeString(&c.DNSToken, saved.DNSToken)

	mergeInt64(&c.ServerID, saved.ServerID)
	mergeString(&c.ServerName, saved.ServerName)
	mergeString(&c.ServerIPv4, saved.ServerIPv4)
	mergeString(&c.ReservedIPv4, saved.ReservedIPv4)
	mergeInt64(&c.ReservedIPID, saved.ReservedIPID)
	mergeString(&c.Location, saved.Location)
	mergeString(&c.ServerType, saved.ServerType)
	mergeInt64(&c.FirewallID, saved.FirewallID)

	mergeString(&c.SSHPrivateKeyPath, saved.SSHPrivateKeyPath)
	mergeString(&c.SSHPublicKeyPath, saved.SSHPublicKeyPath)
	mergeString(&c.SSHUser, saved.SSHUser)
	if c.SSHPort == 0 {
		c.SSHPort = saved.SSHPort
	}
	mergeString(&c.SSHKeyFingerprint, saved.SSHKeyFingerprint)

	mergeString(&c.DatabaseOrgID, saved.DatabaseOrgID)
	mergeString(&c.DatabaseProjectID, saved.DatabaseProjectID)
	mergeString(&c.DatabaseBranchID, saved.DatabaseBranchID)
	mergeString(&c.DatabaseHost, saved.DatabaseHost)
	mergeString(&c.DatabaseRole, saved.DatabaseRole)
	mergeString(&c.DatabasePassword, saved.DatabasePassword)
	c.DatabaseURLs = mergeMap(c.DatabaseURLs, saved.DatabaseURLs)

	mergeString(&c.EmailDomainID, saved.EmailDomainID)
	if len(c.DNSRecords) == 0 && len(saved.DNSRecords) > 0 {
		c.DNSRecords = append([]DNSRecord(nil), saved.DNSRecords...)
	}

	c.DerivedSecrets = mergeMap(c.DerivedSecrets, saved.DerivedSecrets)

	mergeString(&c.RepoOwner, saved.RepoOwner)
	mergeString(&c.RepoName, saved.RepoName)
	mergeString(&c.CIEnvironment, saved.CIEnvironment)
	c.CISecrets = mergeMap(c.CISecrets, saved.CISecrets)
	c.CIVariables = mergeMap(c.CIVariables, saved.CIVariables)
}

func mergeString(dst *string, saved string) {
	if *dst == "" {
		*dst = saved
	}
}

func mergeInt64(dst *int64, saved int64) {
	if *dst == 0 {
		*dst = saved
	}
}

func mergeMap(dst, saved map[string]string) map[string]string {
	if len(saved) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(saved))
	}
	for k, v := range saved {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

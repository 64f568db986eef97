package setup

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var referenceTemplate = template.Must(template.New("reference").Funcs(template.FuncMap{
	"keys": SortedKeys,
	"dns":  formatDNS,
}).Parse(`# {{ .Domain }} production reference

Generated by launchpad. This file contains live credentials; keep it private.

## GitHub environment secrets ({{ .Repository }}{{ if .CIEnvironment }}, environment {{ .CIEnvironment }}{{ end }})
{{ range $k := keys .CISecrets }}
- ` + "`{{ $k }}`" + `: ` + "`{{ index $.CISecrets $k }}`" + `{{ end }}

## GitHub variables
{{ range $k := keys .CIVariables }}
- ` + "`{{ $k }}`" + `: ` + "`{{ index $.CIVariables $k }}`" + `{{ end }}

## Derived secrets
{{ range $k := keys .DerivedSecrets }}
- ` + "`{{ $k }}`" + `: ` + "`{{ index $.DerivedSecrets $k }}`" + `{{ end }}

## DNS records
{{ range .DNSRecords }}
- {{ dns . }}{{ end }}

## Server access

- Public IP: {{ .PublicIP }}
- SSH: ` + "`ssh -i {{ .SSHPrivateKeyPath }} -p {{ .SSHPort }} {{ .SSHUser }}@{{ .PublicIP }}`" + `

## Database URLs
{{ range $k := keys .DatabaseURLs }}
- ` + "`{{ $k }}`" + `: ` + "`{{ index $.DatabaseURLs $k }}`" + `{{ end }}

## Admin

- Email: {{ .AdminEmail }}
- Password: {{ .AdminPassword }}
`))

func formatDNS(r DNSRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s → %s", r.Type, r.Name, r.Value)
	if r.Priority != nil {
		fmt.Fprintf(&b, " (priority %d)", *r.Priority)
	}
	return b.String()
}

// RenderReference renders the reference document for c.
func RenderReference(c *Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := referenceTemplate.Execute(&buf, c); err != nil {
		return nil, fmt.Errorf("failed to render reference: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteReference renders and writes the reference document with owner-only permissions.
func WriteReference(path string, c *Context) error {
	data, err := RenderReference(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

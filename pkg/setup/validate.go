package setup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength applies to the admin password and the passphrase.
const MinPasswordLength = 12

var validate = validator.New()

// ValidateDomain accepts a bare fully qualified domain name.
func ValidateDomain(input string) error {
	if strings.Contains(input, "://") {
		return errors.New("enter the domain without a scheme, e.g. example.com")
	}
	if err := validate.Var(input, "required,fqdn"); err != nil {
		return fmt.Errorf("invalid domain %q", input)
	}
	return nil
}

// ValidateEmail accepts a single email address.
func ValidateEmail(input string) error {
	if err := validate.Var(input, "required,email"); err != nil {
		return fmt.Errorf("invalid email address %q", input)
	}
	return nil
}

// ValidateIPv4 accepts a dotted-quad IPv4 address.
func ValidateIPv4(input string) error {
	if err := validate.Var(input, "required,ipv4"); err != nil {
		return fmt.Errorf("invalid IPv4 address %q", input)
	}
	return nil
}

// ValidatePassword enforces MinPasswordLength.
func ValidatePassword(input string) error {
	if err := validate.Var(input, fmt.Sprintf("required,min=%d", MinPasswordLength)); err != nil {
		return fmt.Errorf("must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// ValidateRequired rejects blank input.
func ValidateRequired(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("a value is required")
	}
	return nil
}

// ValidateRepository accepts "owner/name".
func ValidateRepository(input string) error {
	owner, name, ok := strings.Cut(input, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("expected owner/name, got %q", input)
	}
	return nil
}

// Inputs is the user-entered subset of a Context, with its validation rules.
type Inputs struct {
	Domain        string `validate:"omitempty,fqdn"`
	AdminEmail    string `validate:"omitempty,email"`
	AdminPassword string `validate:"omitempty,min=12"`
	Passphrase    string `validate:"omitempty,min=12"`
	ServerIPv4    string `validate:"omitempty,ipv4"`
	ReservedIPv4  string `validate:"omitempty,ipv4"`
}

// Inputs returns the validated fields of c.
func (c *Context) Inputs() Inputs {
	return Inputs{
		Domain:        c.Domain,
		AdminEmail:    c.AdminEmail,
		AdminPassword: c.AdminPassword,
		Passphrase:    c.Passphrase,
		ServerIPv4:    c.ServerIPv4,
		ReservedIPv4:  c.ReservedIPv4,
	}
}

// Validate checks values loaded from disk or the environment. Empty fields pass;
// they are prompted for later.
func (c *Context) Validate() error {
	err := validate.Struct(c.Inputs())
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

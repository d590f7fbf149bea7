package jwt

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

type validatorOptions struct {
	withExpirationLeeway int64
	withIssuedAtLeeway   int64
	withNow              func() time.Time
}

func validatorDefaults() validatorOptions {
	return validatorOptions{
		withExpirationLeeway: DefaultExpirationLeeway,
		withIssuedAtLeeway:   DefaultIssuedAtLeeway,
		withNow:              time.Now,
	}
}

// getValidatorOpts gets the defaults and applies the opt overrides passed
// in.
func getValidatorOpts(opt ...Option) validatorOptions {
	opts := validatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithExpirationLeeway overrides the leeway applied to the "exp" claim. See
// Validator.Validate for how the value is scaled.
func WithExpirationLeeway(leeway int64) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok {
			o.withExpirationLeeway = leeway
		}
	}
}

// WithIssuedAtLeeway overrides the leeway applied to the "iat" claim. See
// Validator.Validate for how the value is scaled.
func WithIssuedAtLeeway(leeway int64) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok {
			o.withIssuedAtLeeway = leeway
		}
	}
}

// WithNow provides an optional clock, which is mostly useful in tests.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok && now != nil {
			o.withNow = now
		}
	}
}

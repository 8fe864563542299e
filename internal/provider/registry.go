package provider

import "fmt"

// New constructs the adapter registered under name. tripper is only used by
// microlink.
func New(name string, opts Options, tripper Tripper) (Provider, error) {
	switch name {
	case Microlink:
		return NewMicrolink(opts, tripper), nil
	case Ahfi:
		return NewAhfi(opts), nil
	case Xxapi:
		return NewXxapi(opts), nil
	case Jxcxin:
		return NewJxcxin(opts), nil
	case Uapis:
		return NewUapis(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// IsKnown reports whether name is a registered provider.
func IsKnown(name string) bool {
	for _, k := range Known {
		if k == name {
			return true
		}
	}
	return false
}

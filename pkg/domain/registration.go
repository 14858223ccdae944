package domain

// RegisterOptions are sent along with a registration request.
type RegisterOptions struct {
	Scope string `json:"scope,omitempty" yaml:"scope" mapstructure:"scope"`
}

// RegistrationInfo is what a worker reports about a registration it holds.
type RegistrationInfo struct {
	ID      string `json:"id" mapstructure:"id"`
	Scope   string `json:"scope" mapstructure:"scope"`
	Script  string `json:"script" mapstructure:"script"`
	Version int    `json:"version" mapstructure:"version"`
}

// DecodeRegistrationInfo reads a RegistrationInfo out of a reply result.
func DecodeRegistrationInfo(result any) (RegistrationInfo, error) {
	switch v := result.(type) {
	case RegistrationInfo:
		return v, nil
	case *RegistrationInfo:
		if v == nil {
			return RegistrationInfo{}, ErrInvalidEnvelope
		}
		return *v, nil
	}
	var info RegistrationInfo
	if err := Decode(result, &info); err != nil {
		return RegistrationInfo{}, err
	}
	return info, nil
}

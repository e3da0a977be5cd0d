//go:build !azure

package asr

func newAzure(Config) (Engine, error) {
	return nil, &Error{
		Code:    ErrCodeUnsupportedFeature,
		Message: "azure engine not built in (rebuild with -tags azure)",
	}
}

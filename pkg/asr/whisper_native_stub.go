//go:build !whispercpp

package asr

func newWhisperNative(Config) (Engine, error) {
	return nil, &Error{
		Code:    ErrCodeUnsupportedFeature,
		Message: "whisper-native engine not built in (rebuild with -tags whispercpp)",
	}
}

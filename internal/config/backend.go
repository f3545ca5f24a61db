package config

// ConfigBackend abstracts platform-native config storage. macOS keeps
// values in the defaults database under the com.vono.app domain; other
// platforms use a JSON file under the XDG config directory. The
// credentials package reads a manually stored API key through this
// interface without going through Load.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

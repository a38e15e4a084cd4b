package codec

import jsoniter "github.com/json-iterator/go"

// json is a package-level jsoniter configuration bound to the stdlib
// encoding/json API, the same trick the teacher's own go.mod dependency on
// json-iterator implies (its encoders.go calls json.Marshal without an
// encoding/json import, meaning some sibling file in the real teacher
// package binds a package-level `json` alias exactly like this).
var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	Register(Backend{
		Name: "json",
		Marshal: func(v interface{}) ([]byte, error) {
			return json.Marshal(v)
		},
		Unmarshal: func(data []byte, v interface{}) error {
			return json.Unmarshal(data, v)
		},
	})
}

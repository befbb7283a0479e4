package commsdsl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
)

// Data is a loosely typed configuration tree, as read from a generator
// configuration file or assembled by a command line tool.
type Data struct {
	value interface{}
}

func NewData() *Data {
	return &Data{value: make(map[string]interface{})}
}

func NewDataFromMap(m map[string]interface{}) *Data {
	if m == nil {
		m = make(map[string]interface{})
	}
	return &Data{value: m}
}

func (data *Data) String() string {
	return Pretty(data.value)
}

// DataFromFile loads a .yaml/.yml, .toml or .json configuration file.
func DataFromFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var value map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &value)
	case ".toml":
		_, err = toml.Decode(string(raw), &value)
	default:
		err = json.Unmarshal(raw, &value)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return NewDataFromMap(value), nil
}

func (data *Data) Put(key string, value interface{}) {
	if data.value == nil {
		data.value = make(map[string]interface{})
	}
	if m := data.AsMap(); m != nil {
		m[key] = value
	}
}

func (data *Data) AsMap() map[string]interface{} {
	m, _ := data.value.(map[string]interface{})
	return m
}

func (data *Data) Get(keys ...string) interface{} {
	var cur interface{} = data.AsMap()
	for _, key := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		if cur, ok = m[key]; !ok {
			return nil
		}
	}
	return cur
}

func (data *Data) Has(keys ...string) bool {
	return data.Get(keys...) != nil
}

func (data *Data) GetString(keys ...string) string {
	switch s := data.Get(keys...).(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func (data *Data) GetBool(keys ...string) bool {
	switch b := data.Get(keys...).(type) {
	case bool:
		return b
	case string:
		v, _ := strToBool(b)
		return v
	case float64:
		return b != 0
	case int64:
		return b != 0
	case int:
		return b != 0
	case nil:
		return false
	}
	return true
}

// GetInt accepts the numeric types produced by the json, yaml and toml decoders.
func (data *Data) GetInt(keys ...string) int {
	switch n := data.Get(keys...).(type) {
	case float64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case string:
		v, _ := strToInt(n)
		return int(v)
	}
	return 0
}

func (data *Data) GetStringArray(keys ...string) []string {
	switch a := data.Get(keys...).(type) {
	case []string:
		return a
	case []interface{}:
		result := make([]string, 0, len(a))
		for _, item := range a {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case string:
		return splitList(a)
	}
	return nil
}

func (data *Data) GetData(keys ...string) *Data {
	return &Data{value: data.Get(keys...)}
}

func (data *Data) GetConfigString(key string, defaultValue string) string {
	if !data.Has(key) {
		return defaultValue
	}
	return data.GetString(key)
}

func (data *Data) GetConfigBool(key string, defaultValue bool) bool {
	if !data.Has(key) {
		return defaultValue
	}
	return data.GetBool(key)
}

func (data *Data) GetConfigInt(key string, defaultValue int) int {
	if !data.Has(key) {
		return defaultValue
	}
	return data.GetInt(key)
}

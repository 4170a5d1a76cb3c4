package extract

import (
	"github.com/guregu/null/v6"
	"github.com/spf13/cast"
)

// field returns the first present, non-null value among keys
func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) null.String {
	v := field(m, keys...)
	if v == nil {
		return null.String{}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return null.String{}
	}
	s = CleanText(s)
	if placeholders[s] {
		return null.String{}
	}
	return null.StringFrom(s)
}

func floatField(m map[string]any, keys ...string) null.Float {
	switch v := field(m, keys...).(type) {
	case nil:
		return null.Float{}
	case string:
		return ParseNumber(v)
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return null.Float{}
		}
		return null.FloatFrom(f)
	}
}

func intField(m map[string]any, keys ...string) null.Int {
	switch v := field(m, keys...).(type) {
	case nil:
		return null.Int{}
	case string:
		return ParseInt(v)
	default:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return null.Int{}
		}
		return null.IntFrom(i)
	}
}

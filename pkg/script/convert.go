package script

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// tableText renders a returned table as JSON. Sequences become arrays.
func tableText(tbl *lua.LTable) (string, error) {
	v, err := toGo(tbl, 0)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func toGo(v lua.LValue, depth int) (any, error) {
	if depth > 32 {
		return nil, fmt.Errorf("table nesting too deep")
	}
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				item, err := toGo(val.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				arr = append(arr, item)
			}
			return arr, nil
		}
		obj := map[string]any{}
		var err error
		val.ForEach(func(k, item lua.LValue) {
			if err != nil {
				return
			}
			var conv any
			conv, err = toGo(item, depth+1)
			obj[k.String()] = conv
		})
		return obj, err
	}
	return nil, fmt.Errorf("unsupported value type %s", v.Type().String())
}

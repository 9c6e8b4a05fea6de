package models

import "fmt"

func scanString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL enum value")
	}
	return "", fmt.Errorf("cannot scan %T into an enum", value)
}

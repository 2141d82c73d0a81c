package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError carries the full call signature so the model can
// self-correct on the next turn.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks params against the tool definition: required parameters
// present, unknown names rejected, values coerced to declared types,
// defaults filled in. Returns the coerced parameter map.
func (r *Registry) Validate(name string, params map[string]interface{}) (map[string]interface{}, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, &ValidationError{Tool: name, Message: fmt.Sprintf("未知工具: %s", name)}
	}

	known := make(map[string]*Param, len(def.Params))
	for i := range def.Params {
		known[def.Params[i].Name] = &def.Params[i]
	}
	for pname := range params {
		if _, ok := known[pname]; !ok {
			return nil, &ValidationError{Tool: name, Message: fmt.Sprintf("未授权的参数: %s (工具: %s)", pname, name)}
		}
	}

	var missing []string
	for _, p := range def.Params {
		if p.Required {
			if _, ok := params[p.Name]; !ok {
				missing = append(missing, p.Name)
			}
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Tool: name, Message: missingParamsMessage(def, missing)}
	}

	validated := make(map[string]interface{}, len(def.Params))
	for _, p := range def.Params {
		value, ok := params[p.Name]
		if !ok {
			if p.Default != nil {
				validated[p.Name] = p.Default
			}
			continue
		}
		coerced, err := coerce(value, p.Type)
		if err != nil {
			return nil, &ValidationError{
				Tool: name,
				Message: fmt.Sprintf("工具 '%s' 参数 '%s' 类型错误:\n期望类型: %s\n实际收到: %T (%v)\n参数说明: %s",
					name, p.Name, p.Type, value, value, p.Description),
			}
		}
		validated[p.Name] = coerced
	}
	return validated, nil
}

// missingParamsMessage builds the self-correction message: missing names,
// the canonical call format, and a parameter reference.
func missingParamsMessage(def *Definition, missing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "工具 '%s' 缺少必需参数: %s\n\n", def.Name, strings.Join(missing, ", "))
	fmt.Fprintf(&b, "正确的调用格式:\n%s\n\n", def.Signature())
	b.WriteString("参数说明:\n必需参数:\n")
	for _, p := range def.Params {
		if p.Required {
			fmt.Fprintf(&b, "  • %s=值 # %s: %s\n", p.Name, p.Type, p.Description)
		}
	}
	hasOptional := false
	for _, p := range def.Params {
		if !p.Required {
			if !hasOptional {
				b.WriteString("可选参数:\n")
				hasOptional = true
			}
			defaultStr := ""
			if p.Default != nil && p.Default != "" {
				defaultStr = fmt.Sprintf(" (默认: %v)", p.Default)
			}
			fmt.Fprintf(&b, "  • [%s=值] # %s: %s%s\n", p.Name, p.Type, p.Description, defaultStr)
		}
	}
	b.WriteString("\n提示: 请确保按照上述格式调用工具, 所有必需参数都必须提供。")
	return b.String()
}

// coerce converts a value to the declared parameter type.
func coerce(value interface{}, typ string) (interface{}, error) {
	switch typ {
	case "int":
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case string:
			return strconv.Atoi(strings.TrimSpace(v))
		}
	case "float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
	case "bool":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes", "on":
				return true, nil
			default:
				return false, nil
			}
		}
	case "array":
		switch v := value.(type) {
		case []interface{}:
			return v, nil
		case []string:
			out := make([]interface{}, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		case string:
			var out []interface{}
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			return out, nil
		default:
			return []interface{}{value}, nil
		}
	default: // string
		switch v := value.(type) {
		case string:
			return v, nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", value, typ)
}

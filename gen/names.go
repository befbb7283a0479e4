package gen

import (
	"strings"

	"github.com/knq/snaker"
)

// ClassName turns a schema name such as "msg_status" or "MsgStatus" into an
// exported identifier.
func ClassName(name string) string {
	if name == "" {
		return ""
	}
	if strings.Contains(name, "_") {
		return snaker.ForceCamelIdentifier(name)
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// AccessName is the lower camel form used for member accessors.
func AccessName(name string) string {
	if name == "" {
		return ""
	}
	if strings.Contains(name, "_") {
		return snaker.ForceLowerCamelIdentifier(name)
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// SnakeName converts a camel case name to snake case, as used for enumerator
// and GraphQL value names.
func SnakeName(name string) string {
	return snaker.CamelToSnake(name)
}

// ConstName is the upper snake form used for enumerators and macros.
func ConstName(name string) string {
	return strings.ToUpper(SnakeName(name))
}

// NamespacePath returns the directory of ns relative to the include root;
// the top level namespace maps to mainNs.
func NamespacePath(mainNs string, dotted string) string {
	parts := []string{mainNs}
	if dotted != "" {
		parts = append(parts, strings.Split(dotted, ".")...)
	}
	return strings.Join(parts, "/")
}

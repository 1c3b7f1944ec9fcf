package mssql

import (
	"fmt"
	"strings"
)

// quoteName brackets an identifier the way QUOTENAME() does, escaping ] as ]].
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

// isNumericType returns true if the type is a numeric type in SQL Server.
func isNumericType(sqlType string) bool {
	switch strings.ToLower(sqlType) {
	case "tinyint", "smallint", "int", "bigint",
		"decimal", "numeric", "money", "smallmoney",
		"float", "real":
		return true
	}
	return false
}

// isStringType returns true for character types that LEN() can measure.
func isStringType(sqlType string) bool {
	switch strings.ToLower(sqlType) {
	case "char", "nchar", "varchar", "nvarchar", "sysname":
		return true
	}
	return false
}

// isProfilable reports whether COUNT(DISTINCT ...) works on the type.
// LOB, spatial and hierarchy types are not comparable.
func isProfilable(sqlType string) bool {
	switch strings.ToLower(sqlType) {
	case "text", "ntext", "image", "xml", "geography", "geometry",
		"hierarchyid", "sql_variant", "json", "vector":
		return false
	}
	return true
}

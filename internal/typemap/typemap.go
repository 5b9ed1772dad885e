// Package typemap maps logical column types to Snowflake column types and
// decides which in-place type changes are safe.
package typemap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"target-snowflake/pkg/records"
)

// Family groups column types that share a physical representation.
type Family uint8

const (
	FamilyOther Family = iota
	FamilyText
	FamilyNumber
	FamilyFloat
	FamilyBoolean
	FamilyTimestamp
	FamilyDate
)

const (
	// MaxVarcharLength is the largest VARCHAR Snowflake accepts.
	MaxVarcharLength = 16777216
	// MaxPrecision is the largest NUMBER precision.
	MaxPrecision = 38
)

// ColumnType is a physical Snowflake column type.
type ColumnType struct {
	Family    Family
	Length    int // Text
	Precision int // Number
	Scale     int // Number
	// Raw holds the warehouse spelling of types outside the known families.
	Raw string
}

func Text(n int) ColumnType      { return ColumnType{Family: FamilyText, Length: n} }
func Number(p, s int) ColumnType { return ColumnType{Family: FamilyNumber, Precision: p, Scale: s} }
func Float() ColumnType          { return ColumnType{Family: FamilyFloat} }
func Boolean() ColumnType        { return ColumnType{Family: FamilyBoolean} }
func Timestamp() ColumnType      { return ColumnType{Family: FamilyTimestamp} }
func Date() ColumnType           { return ColumnType{Family: FamilyDate} }

// String renders t as Snowflake DDL.
func (t ColumnType) String() string {
	switch t.Family {
	case FamilyText:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case FamilyNumber:
		return fmt.Sprintf("NUMBER(%d,%d)", t.Precision, t.Scale)
	case FamilyFloat:
		return "FLOAT"
	case FamilyBoolean:
		return "BOOLEAN"
	case FamilyTimestamp:
		return "TIMESTAMP_NTZ"
	case FamilyDate:
		return "DATE"
	default:
		return t.Raw
	}
}

// Equal reports whether t and o denote the same physical type.
func (t ColumnType) Equal(o ColumnType) bool {
	if t.Family != o.Family {
		return false
	}
	switch t.Family {
	case FamilyText:
		return t.Length == o.Length
	case FamilyNumber:
		return t.Precision == o.Precision && t.Scale == o.Scale
	case FamilyOther:
		return strings.EqualFold(t.Raw, o.Raw)
	default:
		return true
	}
}

// Map returns the column type for a logical type.
func Map(lt records.LogicalType) ColumnType {
	switch lt.Kind {
	case records.LogicalString:
		if lt.MaxLength > 0 && lt.MaxLength <= MaxVarcharLength {
			return Text(lt.MaxLength)
		}
		return Text(MaxVarcharLength)
	case records.LogicalJSON:
		return Text(MaxVarcharLength)
	case records.LogicalInteger:
		return Number(MaxPrecision, 0)
	case records.LogicalNumber:
		return numberType(lt)
	case records.LogicalBoolean:
		return Boolean()
	case records.LogicalDateTime:
		return Timestamp()
	case records.LogicalDate:
		return Date()
	default:
		return Text(MaxVarcharLength)
	}
}

// numberType picks NUMBER(p,s) when multipleOf pins the scale, and FLOAT
// otherwise. minimum/maximum narrow the precision when both are present.
func numberType(lt records.LogicalType) ColumnType {
	if lt.MultipleOf == nil || *lt.MultipleOf <= 0 {
		return Float()
	}
	scale := decimalPlaces(*lt.MultipleOf)
	if scale >= MaxPrecision {
		return Float()
	}
	precision := MaxPrecision
	if lt.Minimum != nil && lt.Maximum != nil {
		bound := math.Max(math.Abs(*lt.Minimum), math.Abs(*lt.Maximum))
		if p := integerDigits(bound) + scale; p < precision {
			precision = p
		}
	}
	return Number(precision, scale)
}

func decimalPlaces(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func integerDigits(f float64) int {
	n := len(strconv.FormatFloat(math.Trunc(f), 'f', 0, 64))
	if n < 1 {
		return 1
	}
	return n
}

// IsWideningAllowed reports whether a column of type from may be altered in
// place to type to. Identity is always allowed. Otherwise only these
// transitions are permitted:
//
//	VARCHAR(n)   -> VARCHAR(m)   m > n
//	NUMBER(p,s)  -> NUMBER(q,s)  q > p
//
// Every other pair, including any cross-family change, is rejected.
func IsWideningAllowed(from, to ColumnType) bool {
	if from.Equal(to) {
		return true
	}
	switch {
	case from.Family == FamilyText && to.Family == FamilyText:
		return to.Length > from.Length
	case from.Family == FamilyNumber && to.Family == FamilyNumber:
		return to.Scale == from.Scale && to.Precision > from.Precision
	default:
		return false
	}
}

// ParseWarehouse canonicalizes a row of information_schema.columns.
// charLen, precision and scale are ignored when the type does not use them.
func ParseWarehouse(dataType string, charLen, precision, scale int64) ColumnType {
	switch strings.ToUpper(strings.TrimSpace(dataType)) {
	case "TEXT", "VARCHAR", "STRING", "CHAR", "CHARACTER", "NVARCHAR":
		if charLen <= 0 {
			charLen = MaxVarcharLength
		}
		return Text(int(charLen))
	case "NUMBER", "DECIMAL", "NUMERIC":
		if precision <= 0 {
			precision = MaxPrecision
		}
		return Number(int(precision), int(scale))
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		return Number(MaxPrecision, 0)
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "REAL":
		return Float()
	case "BOOLEAN":
		return Boolean()
	case "TIMESTAMP_NTZ", "DATETIME", "TIMESTAMP":
		return Timestamp()
	case "DATE":
		return Date()
	default:
		return ColumnType{Family: FamilyOther, Raw: strings.ToUpper(strings.TrimSpace(dataType))}
	}
}

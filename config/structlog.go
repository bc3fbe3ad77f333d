package config

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/golang/glog"
)

type logMsg func(string, ...interface{})

var mapregex = regexp.MustCompile(`mapstructure:"([^"]+)"`)
var blacklistregexp = []*regexp.Regexp{regexp.MustCompile("password")}

// logGeneral will log nearly any sort of value, but requires the name of the root object to be in the
// prefix if you want that name to be logged. Structs will append .fieldname to the prefix
// maps will append [keyname], and slices will append [index].
func logGeneral(v reflect.Value, prefix string) {
	logGeneralWithLogger(v, prefix, glog.Infof)
}

func logGeneralWithLogger(v reflect.Value, prefix string, logger logMsg) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			logger("%s: nil", prefix)
			return
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		logStructWithLogger(v, prefix, logger)
	case reflect.Map:
		logMapWithLogger(v, prefix, logger)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			logGeneralWithLogger(v.Index(i), fmt.Sprintf("%s[%d]", prefix, i), logger)
		}
	case reflect.Bool:
		logger("%s: %t", prefix, v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		logger("%s: %d", prefix, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		logger("%s: %d", prefix, v.Uint())
	case reflect.Float32, reflect.Float64:
		logger("%s: %f", prefix, v.Float())
	case reflect.String:
		logger("%s: %s", prefix, v.String())
	default:
		logger("%s: <%s>", prefix, v.Kind().String())
	}
}

func logStructWithLogger(v reflect.Value, prefix string, logger logMsg) {
	for i := 0; i < v.NumField(); i++ {
		fieldname := fieldNameByTag(v.Type().Field(i))
		if prefix != "" {
			fieldname = fmt.Sprintf("%s.%s", prefix, fieldname)
		}
		if allowedName(fieldname) {
			logGeneralWithLogger(v.Field(i), fieldname, logger)
		} else {
			logger("%s: <REDACTED>", fieldname)
		}
	}
}

func logMapWithLogger(v reflect.Value, prefix string, logger logMsg) {
	for _, k := range v.MapKeys() {
		if k.Kind() == reflect.String && !allowedName(k.String()) {
			logger("%s[%s]: <REDACTED>", prefix, k.String())
		} else {
			logGeneralWithLogger(v.MapIndex(k), fmt.Sprintf("%s[%v]", prefix, k), logger)
		}
	}
}

func fieldNameByTag(f reflect.StructField) string {
	match := mapregex.FindStringSubmatch(string(f.Tag))
	if match == nil || len(match) < 2 {
		return "((" + f.Name + "))"
	}
	return match[1]
}

func allowedName(name string) bool {
	for _, r := range blacklistregexp {
		if r.MatchString(name) {
			return false
		}
	}
	return true
}

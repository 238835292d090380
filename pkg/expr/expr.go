// Package expr implements the %field context substitution and nested
// function-call expression language used by SET command values,
// per spec.md §4.5. Grounded on
// original_source/mgindb/command_utils.py's ContextUtil/ExpressionUtil.
package expr

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Context maps placeholder names to their substituted string values.
// The SET handler fills it from the fields of the parent document of
// the field being set.
type Context map[string]string

// ContextFromKey builds a Context the way original_source's
// get_context_from_key does: every path segment except the last keyed
// by its own value is not meaningful here, so mgindb instead exposes
// the segment values under positional-ish names supplied by the
// caller. Most callers build Context directly from known field values;
// this helper exists for parity with the original's single entry
// point.
func ContextFromKey(segments []string) Context {
	ctx := make(Context, len(segments))
	for _, seg := range segments {
		ctx[seg] = seg
	}
	return ctx
}

var placeholderRe = regexp.MustCompile(`%(\w+)`)

// ReplacePlaceholders substitutes every %name token in arg with its
// value from ctx. Returns an error if any referenced name is missing.
func ReplacePlaceholders(arg string, ctx Context) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(arg, func(tok string) string {
		name := tok[1:]
		if v, ok := ctx[name]; ok {
			return v
		}
		missing = name
		return tok
	})
	if missing != "" {
		return "", fmt.Errorf("placeholder %%%s not found in context", missing)
	}
	return out, nil
}

var funcCallRe = regexp.MustCompile(`(\w+)\(([^()]*?)\)`)

// Evaluate repeatedly rewrites the innermost function call in expr
// until no call remains, matching evaluate_expression's loop. Each
// call's argument has its placeholders substituted from ctx before the
// function runs, so ROUND(%a,%b) and nested calls like UPPER(HASH(%x))
// both resolve inside-out.
func Evaluate(expression string, ctx Context) (string, error) {
	for {
		loc := funcCallRe.FindStringSubmatchIndex(expression)
		if loc == nil {
			return expression, nil
		}
		fn := strings.ToUpper(expression[loc[2]:loc[3]])
		rawArg := strings.TrimSpace(expression[loc[4]:loc[5]])

		arg, err := ReplacePlaceholders(rawArg, ctx)
		if err != nil {
			return "", err
		}
		result, err := ApplyFunction(fn, arg)
		if err != nil {
			return "", err
		}
		expression = expression[:loc[0]] + result + expression[loc[1]:]
	}
}

// ApplyFunction runs one named expression function, per
// ExpressionUtil.apply_function.
func ApplyFunction(fn, arg string) (string, error) {
	switch fn {
	case "BASE64":
		return base64.StdEncoding.EncodeToString([]byte(arg)), nil
	case "HASH":
		sum := sha256.Sum256([]byte(arg))
		return hex.EncodeToString(sum[:]), nil
	case "MD5":
		sum := md5.Sum([]byte(arg))
		return hex.EncodeToString(sum[:]), nil
	case "CHECKSUM":
		return checksum(arg)
	case "RANDOM":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "", err
		}
		return randomString(n), nil
	case "UPPER":
		return strings.ToUpper(arg), nil
	case "LOWER":
		return strings.ToLower(arg), nil
	case "UUID":
		return uuid.NewString(), nil
	case "TIMESTAMP":
		return FormatTimestamp(arg)
	case "ROUND":
		return round(arg)
	case "DECIMAL":
		return decimal(arg)
	default:
		return "", fmt.Errorf("unsupported function %s", fn)
	}
}

func checksum(arg string) (string, error) {
	parts := strings.SplitN(arg, ",", 2)
	if len(parts) != 2 {
		return "", errors.New("CHECKSUM requires algo,value")
	}
	algo := strings.ToUpper(strings.TrimSpace(parts[0]))
	value := strings.TrimSpace(parts[1])
	switch algo {
	case "CRC32":
		return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(value))), 10), nil
	case "SHA1":
		sum := sha1.Sum([]byte(value))
		return hex.EncodeToString(sum[:]), nil
	case "SHA256":
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported CHECKSUM algorithm %s", algo)
	}
}

const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = randomAlphabet[rand.Intn(len(randomAlphabet))]
	}
	return string(out)
}

// FormatTimestamp implements TIMESTAMP(unix|full|date|time), per
// ExpressionUtil.format_timestamp.
func FormatTimestamp(kind string) (string, error) {
	now := time.Now()
	switch strings.ToLower(kind) {
	case "unix":
		return strconv.FormatInt(now.Unix(), 10), nil
	case "full":
		return now.Truncate(time.Second).Format("2006-01-02T15:04:05"), nil
	case "date":
		return now.Format("2006-01-02"), nil
	case "time":
		return now.Truncate(time.Second).Format("15:04:05"), nil
	default:
		return "", fmt.Errorf("unknown TIMESTAMP format %s", kind)
	}
}

func round(arg string) (string, error) {
	parts := strings.SplitN(arg, ",", 2)
	if len(parts) != 2 {
		return "", errors.New("ROUND requires num,digits")
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return "", err
	}
	digits, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", err
	}
	mult := math.Pow(10, float64(digits))
	rounded := math.Round(num*mult) / mult
	return strconv.FormatFloat(rounded, 'f', digits, 64), nil
}

func decimal(arg string) (string, error) {
	parts := strings.SplitN(arg, ",", 2)
	if len(parts) != 2 {
		return "", errors.New("DECIMAL requires num,decimals")
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return "", err
	}
	decimals, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(num, 'f', decimals, 64), nil
}

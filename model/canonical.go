package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"
)

// Canonical normalizes a JSON-ish value so that values of different Go types
// but equal JSON form (e.g. int 42 and float64 42) compare equal. Numbers are
// kept as exact decimal json.Number values, so integers beyond float64
// precision never collapse into each other.
func Canonical(v interface{}) (interface{}, error) {
	switch actual := v.(type) {
	case nil, string, bool:
		return actual, nil
	case json.Number:
		return canonicalNumber(actual)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot canonicalize value of type %T: %w", v, err)
	}
	var ret interface{}
	if err = DecodeJSON(data, &ret); err != nil {
		return nil, fmt.Errorf("cannot canonicalize value of type %T: %w", v, err)
	}
	return normalize(ret)
}

// DecodeJSON decodes data into target keeping numbers as json.Number.
func DecodeJSON(data []byte, target interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(target)
}

func normalize(v interface{}) (interface{}, error) {
	var err error
	switch actual := v.(type) {
	case json.Number:
		return canonicalNumber(actual)
	case []interface{}:
		for i, item := range actual {
			if actual[i], err = normalize(item); err != nil {
				return nil, err
			}
		}
	case map[string]interface{}:
		for k, item := range actual {
			if actual[k], err = normalize(item); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// canonicalNumber rewrites n in its shortest exact decimal form: 42, 42.0
// and 4.2e1 all become "42".
func canonicalNumber(n json.Number) (json.Number, error) {
	r, ok := new(big.Rat).SetString(string(n))
	if !ok {
		return "", fmt.Errorf("invalid number %q", n)
	}
	if r.IsInt() {
		return json.Number(r.Num().String()), nil
	}
	text := r.FloatString(decimalPlaces(r.Denom()))
	return json.Number(strings.TrimRight(text, "0")), nil
}

// decimalPlaces returns the digits needed to print 1/denom exactly; a
// denominator decoded from a decimal literal only has factors 2 and 5.
func decimalPlaces(denom *big.Int) int {
	twos := factorCount(denom, 2)
	fives := factorCount(denom, 5)
	if twos > fives {
		return twos
	}
	return fives
}

func factorCount(n *big.Int, factor int64) int {
	divisor := big.NewInt(factor)
	rest := new(big.Int).Set(n)
	mod := new(big.Int)
	count := 0
	for rest.Sign() > 0 {
		quo, rem := new(big.Int).QuoRem(rest, divisor, mod)
		if rem.Sign() != 0 {
			break
		}
		rest = quo
		count++
	}
	return count
}

// CanonicalJSON returns a deterministic JSON encoding; object keys are sorted.
func CanonicalJSON(v interface{}) ([]byte, error) {
	normalized, err := Canonical(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// Equal compares two values by their canonical form.
func Equal(a, b interface{}) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(ca, cb)
}

// CanonicalDocument normalizes an argument document.
func CanonicalDocument(doc map[string]interface{}) (map[string]interface{}, error) {
	if doc == nil {
		return nil, nil
	}
	normalized, err := Canonical(doc)
	if err != nil {
		return nil, err
	}
	ret, ok := normalized.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected document, got %T", normalized)
	}
	return ret, nil
}

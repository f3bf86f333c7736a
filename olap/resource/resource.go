// Package resource reads and writes measure bags as YAML or JSON
// documents.
package resource

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-pivot.v0/internal/similartext"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	yaml "gopkg.in/yaml.v2"
)

// ErrUnknownFormat is returned for a format other than yaml, yml or json.
var ErrUnknownFormat = errors.NewKind("unknown resource format: %s")

// Format of a resource.
type Format string

const (
	// YAML resources.
	YAML Format = "yaml"
	// JSON resources.
	JSON Format = "json"
)

// ParseFormat returns the format with the given name, case insensitive.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "yaml", "yml":
		return YAML, nil
	case "json":
		return JSON, nil
	default:
		return "", ErrUnknownFormat.New(name)
	}
}

// Measure types.
const (
	AggregatorType = "aggregator"
	CombinatorType = "combinator"
	FiltratorType  = "filtrator"
	BucketorType   = "bucketor"
	DispatchorType = "dispatchor"
	ColumnatorType = "columnator"
)

// Keys of a measure definition.
const (
	nameKey                 = "name"
	typeKey                 = "type"
	debugKey                = "debug"
	columnNameKey           = "columnName"
	aggregationKeyKey       = "aggregationKey"
	combinationKeyKey       = "combinationKey"
	combinationOptionsKey   = "combinationOptions"
	underlyingKey           = "underlying"
	underlyingsKey          = "underlyings"
	filterKey               = "filter"
	groupByKey              = "groupBy"
	decompositionKeyKey     = "decompositionKey"
	decompositionOptionsKey = "decompositionOptions"
	requiredColumnsKey      = "requiredColumns"
	measuresKey             = "measures"
)

// Loader turns raw measure definitions into measures. Measures defined
// inline as underlyings of another one are registered too; when they have
// no name, one is generated.
type Loader struct {
	anonymous int64
}

// NewLoader creates a new loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads a list of measure definitions.
func (l *Loader) Load(format Format, r io.Reader) (*measure.Bag, error) {
	raw, err := decode(format, r)
	if err != nil {
		return nil, err
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("expected a list of measures, got %T", raw))
	}
	return l.MakeBag(list)
}

// LoadBags reads a list of named bags, each with a name and a list of
// measures.
func (l *Loader) LoadBags(format Format, r io.Reader) (map[string]*measure.Bag, error) {
	raw, err := decode(format, r)
	if err != nil {
		return nil, err
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("expected a list of bags, got %T", raw))
	}

	bags := make(map[string]*measure.Bag, len(list))
	for _, rb := range list {
		def, ok := rb.(map[string]interface{})
		if !ok {
			return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("expected a bag, got %T", rb))
		}

		name, err := requiredString(def, nameKey)
		if err != nil {
			return nil, err
		}
		rawMeasures, err := required(def, measuresKey)
		if err != nil {
			return nil, err
		}
		measures, ok := rawMeasures.([]interface{})
		if !ok {
			return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("measures of bag %s must be a list", name))
		}

		if _, ok := bags[name]; ok {
			return nil, olap.ErrInvalidConfiguration.New("duplicate bag " + name)
		}
		if bags[name], err = l.MakeBag(measures); err != nil {
			return nil, err
		}
	}
	return bags, nil
}

// MakeBag creates a bag from raw measure definitions.
func (l *Loader) MakeBag(definitions []interface{}) (*measure.Bag, error) {
	bag := measure.NewBag()
	for _, def := range definitions {
		m, ok := def.(map[string]interface{})
		if !ok {
			return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("expected a measure, got %T", def))
		}

		measures, err := l.MakeMeasure(m)
		if err != nil {
			return nil, err
		}
		for _, m := range measures {
			if err := bag.Add(m); err != nil {
				return nil, err
			}
		}
	}
	return bag, nil
}

// MakeMeasure creates the measure defined by the map, followed by the
// measures defined inline as its underlyings.
func (l *Loader) MakeMeasure(def map[string]interface{}) ([]measure.Measure, error) {
	typ, err := requiredString(def, typeKey)
	if err != nil {
		return nil, err
	}

	name := cast.ToString(def[nameKey])
	if name == "" {
		name = fmt.Sprintf("anonymous-%d", atomic.AddInt64(&l.anonymous, 1)-1)
	}
	debug := cast.ToBool(def[debugKey])

	var inline []measure.Measure
	underlying := func(raw interface{}) (string, error) {
		switch raw := raw.(type) {
		case string:
			return raw, nil
		case map[string]interface{}:
			ms, err := l.MakeMeasure(raw)
			if err != nil {
				return "", err
			}
			inline = append(inline, ms...)
			return ms[0].MeasureName(), nil
		default:
			return "", olap.ErrInvalidConfiguration.New(
				fmt.Sprintf("invalid underlying of %s: %v (%T)", name, raw, raw),
			)
		}
	}
	underlyings := func() ([]string, error) {
		raw, err := required(def, underlyingsKey)
		if err != nil {
			return nil, err
		}
		list, ok := raw.([]interface{})
		if !ok {
			return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("underlyings of %s must be a list", name))
		}

		names := make([]string, len(list))
		for i, u := range list {
			if names[i], err = underlying(u); err != nil {
				return nil, err
			}
		}
		return names, nil
	}

	var m measure.Measure
	switch typ {
	case AggregatorType:
		if err := checkKeys(def, name, columnNameKey, aggregationKeyKey); err != nil {
			return nil, err
		}
		m = &measure.Aggregator{
			Name:           name,
			ColumnName:     cast.ToString(def[columnNameKey]),
			AggregationKey: cast.ToString(def[aggregationKeyKey]),
			Debug:          debug,
		}
	case CombinatorType:
		if err := checkKeys(def, name, underlyingsKey, combinationKeyKey, combinationOptionsKey); err != nil {
			return nil, err
		}
		names, err := underlyings()
		if err != nil {
			return nil, err
		}
		m = &measure.Combinator{
			Name:               name,
			UnderlyingNames:    names,
			CombinationKey:     cast.ToString(def[combinationKeyKey]),
			CombinationOptions: optionalMap(def, combinationOptionsKey),
			Debug:              debug,
		}
	case FiltratorType:
		if err := checkKeys(def, name, underlyingKey, filterKey); err != nil {
			return nil, err
		}
		raw, err := required(def, underlyingKey)
		if err != nil {
			return nil, err
		}
		u, err := underlying(raw)
		if err != nil {
			return nil, err
		}
		rawFilter, err := required(def, filterKey)
		if err != nil {
			return nil, err
		}
		f, err := MakeFilter(rawFilter)
		if err != nil {
			return nil, err
		}
		m = &measure.Filtrator{Name: name, Underlying: u, Filter: f, Debug: debug}
	case BucketorType:
		if err := checkKeys(def, name,
			underlyingsKey, groupByKey, aggregationKeyKey, combinationKeyKey, combinationOptionsKey,
		); err != nil {
			return nil, err
		}
		names, err := underlyings()
		if err != nil {
			return nil, err
		}
		rawGroupBy, err := required(def, groupByKey)
		if err != nil {
			return nil, err
		}
		columns, err := cast.ToStringSliceE(rawGroupBy)
		if err != nil {
			return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("groupBy of %s must be a list of columns", name))
		}
		m = &measure.Bucketor{
			Name:               name,
			UnderlyingNames:    names,
			GroupBy:            olap.NewGroupBy(columns...),
			AggregationKey:     cast.ToString(def[aggregationKeyKey]),
			CombinationKey:     cast.ToString(def[combinationKeyKey]),
			CombinationOptions: optionalMap(def, combinationOptionsKey),
			Debug:              debug,
		}
	case DispatchorType:
		if err := checkKeys(def, name,
			underlyingKey, decompositionKeyKey, decompositionOptionsKey, aggregationKeyKey,
		); err != nil {
			return nil, err
		}
		raw, err := required(def, underlyingKey)
		if err != nil {
			return nil, err
		}
		u, err := underlying(raw)
		if err != nil {
			return nil, err
		}
		key, err := requiredString(def, decompositionKeyKey)
		if err != nil {
			return nil, err
		}
		m = &measure.Dispatchor{
			Name:                 name,
			Underlying:           u,
			DecompositionKey:     key,
			DecompositionOptions: optionalMap(def, decompositionOptionsKey),
			AggregationKey:       cast.ToString(def[aggregationKeyKey]),
			Debug:                debug,
		}
	case ColumnatorType:
		if err := checkKeys(def, name,
			underlyingsKey, requiredColumnsKey, combinationKeyKey, combinationOptionsKey,
		); err != nil {
			return nil, err
		}
		names, err := underlyings()
		if err != nil {
			return nil, err
		}
		rawColumns, err := required(def, requiredColumnsKey)
		if err != nil {
			return nil, err
		}
		columns, err := cast.ToStringSliceE(rawColumns)
		if err != nil {
			return nil, olap.ErrInvalidConfiguration.New(
				fmt.Sprintf("requiredColumns of %s must be a list of columns", name),
			)
		}
		m = &measure.Columnator{
			Name:               name,
			UnderlyingNames:    names,
			RequiredColumns:    columns,
			CombinationKey:     cast.ToString(def[combinationKeyKey]),
			CombinationOptions: optionalMap(def, combinationOptionsKey),
			Debug:              debug,
		}
	default:
		return nil, olap.ErrInvalidConfiguration.New(
			fmt.Sprintf("unknown measure type %q%s", typ, similartext.Find(measureTypes, typ)),
		)
	}

	return append([]measure.Measure{m}, inline...), nil
}

var measureTypes = []string{
	AggregatorType,
	CombinatorType,
	FiltratorType,
	BucketorType,
	DispatchorType,
	ColumnatorType,
}

// checkKeys fails on keys which are neither common to all measures nor in
// the allowed ones.
func checkKeys(def map[string]interface{}, name string, allowed ...string) error {
	known := append([]string{nameKey, typeKey, debugKey}, allowed...)

	keys := make([]string, 0, len(def))
	for k := range def {
		keys = append(keys, k)
	}
	sort.Strings(keys)

outer:
	for _, k := range keys {
		for _, a := range known {
			if k == a {
				continue outer
			}
		}
		return olap.ErrInvalidConfiguration.New(
			fmt.Sprintf("unknown key %q in %s%s", k, name, similartext.Find(known, k)),
		)
	}
	return nil
}

func required(def map[string]interface{}, key string) (interface{}, error) {
	v, ok := def[key]
	if ok && v != nil {
		return v, nil
	}

	if len(def) == 0 {
		return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("empty definition while looking for %s", key))
	}

	present := make([]string, 0, len(def))
	for k := range def {
		present = append(present, k)
	}
	sort.Strings(present)
	return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("missing %s%s", key, similartext.Find(present, key)))
}

func requiredString(def map[string]interface{}, key string) (string, error) {
	v, err := required(def, key)
	if err != nil {
		return "", err
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return "", olap.ErrInvalidConfiguration.New(fmt.Sprintf("%s must be a non empty string, got %v", key, v))
	}
	return s, nil
}

func optionalMap(def map[string]interface{}, key string) map[string]interface{} {
	m, _ := def[key].(map[string]interface{})
	return m
}

// decode reads the whole document. JSON documents are read with the YAML
// decoder, JSON being valid YAML.
func decode(format Format, r io.Reader) (interface{}, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, olap.ErrInvalidConfiguration.Wrap(err, "can not decode "+string(format))
	}
	return normalize(raw), nil
}

// normalize turns the map[interface{}]interface{} produced by the YAML
// decoder into map[string]interface{}, recursively.
func normalize(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[cast.ToString(k)] = normalize(val)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[k] = normalize(val)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(v))
		for i, val := range v {
			l[i] = normalize(val)
		}
		return l
	default:
		return v
	}
}

// LoadFile reads the measure bag in the file, picking the format from its
// extension.
func LoadFile(path string) (*measure.Bag, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewLoader().Load(format, f)
}

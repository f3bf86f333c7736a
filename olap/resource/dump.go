package resource

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	yaml "gopkg.in/yaml.v2"
)

// Dump writes the measures of the bag, in the order they were added.
// Properties matching their default are left out.
func Dump(format Format, w io.Writer, bag *measure.Bag) error {
	defs, err := bagDefinition(bag)
	if err != nil {
		return err
	}
	return encode(format, w, defs)
}

// DumpBags writes the named bags, sorted by name.
func DumpBags(format Format, w io.Writer, bags map[string]*measure.Bag) error {
	names := make([]string, 0, len(bags))
	for name := range bags {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]interface{}, len(names))
	for i, name := range names {
		defs, err := bagDefinition(bags[name])
		if err != nil {
			return err
		}
		result[i] = ordered(nameKey, name, measuresKey, defs)
	}
	return encode(format, w, result)
}

func bagDefinition(bag *measure.Bag) ([]interface{}, error) {
	measures := bag.Measures()
	result := make([]interface{}, len(measures))
	for i, m := range measures {
		var err error
		if result[i], err = measureDefinition(m); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func measureDefinition(m measure.Measure) (yaml.MapSlice, error) {
	var def yaml.MapSlice
	put := func(key string, value interface{}) {
		def = append(def, yaml.MapItem{Key: key, Value: value})
	}
	putKey := func(key, value string) {
		if value != "" && value != aggregation.SumKey {
			put(key, value)
		}
	}
	putMap := func(key string, value map[string]interface{}) {
		if len(value) > 0 {
			put(key, value)
		}
	}

	put(nameKey, m.MeasureName())
	switch m := m.(type) {
	case *measure.Aggregator:
		put(typeKey, AggregatorType)
		putKey(aggregationKeyKey, m.AggregationKey)
		if m.ColumnName != "" && m.ColumnName != m.Name {
			put(columnNameKey, m.ColumnName)
		}
	case *measure.Combinator:
		put(typeKey, CombinatorType)
		putKey(combinationKeyKey, m.CombinationKey)
		put(underlyingsKey, m.UnderlyingNames)
		putMap(combinationOptionsKey, m.CombinationOptions)
	case *measure.Filtrator:
		put(typeKey, FiltratorType)
		put(underlyingKey, m.Underlying)
		f, err := filterDefinition(m.Filter)
		if err != nil {
			return nil, err
		}
		put(filterKey, f)
	case *measure.Bucketor:
		put(typeKey, BucketorType)
		putKey(aggregationKeyKey, m.AggregationKey)
		putKey(combinationKeyKey, m.CombinationKey)
		put(underlyingsKey, m.UnderlyingNames)
		put(groupByKey, m.GroupBy.Columns())
		putMap(combinationOptionsKey, m.CombinationOptions)
	case *measure.Dispatchor:
		put(typeKey, DispatchorType)
		putKey(aggregationKeyKey, m.AggregationKey)
		put(underlyingKey, m.Underlying)
		put(decompositionKeyKey, m.DecompositionKey)
		putMap(decompositionOptionsKey, m.DecompositionOptions)
	case *measure.Columnator:
		put(typeKey, ColumnatorType)
		putKey(combinationKeyKey, m.CombinationKey)
		put(underlyingsKey, m.UnderlyingNames)
		put(requiredColumnsKey, m.RequiredColumns)
		putMap(combinationOptionsKey, m.CombinationOptions)
	default:
		return nil, olap.ErrInvalidMeasure.New(m, fmt.Sprintf("can not dump %T", m))
	}

	if measure.IsDebug(m) {
		put(debugKey, true)
	}
	return def, nil
}

func ordered(kv ...interface{}) yaml.MapSlice {
	result := make(yaml.MapSlice, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		result = append(result, yaml.MapItem{Key: kv[i], Value: kv[i+1]})
	}
	return result
}

func encode(format Format, w io.Writer, v interface{}) error {
	f, err := ParseFormat(string(format))
	if err != nil {
		return err
	}

	var data []byte
	switch f {
	case JSON:
		data, err = json.MarshalIndent(plain(v), "", "  ")
		data = append(data, '\n')
	default:
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// plain turns ordered maps into maps the JSON encoder can write.
func plain(v interface{}) interface{} {
	switch v := v.(type) {
	case yaml.MapSlice:
		m := make(map[string]interface{}, len(v))
		for _, item := range v {
			m[fmt.Sprint(item.Key)] = plain(item.Value)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[k] = plain(val)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(v))
		for i, val := range v {
			l[i] = plain(val)
		}
		return l
	default:
		return v
	}
}

// Package test holds helpers shared by the tests of several packages.
package test

import (
	"gopkg.in/src-d/go-pivot.v0/memory"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/decomposition"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
)

// ScenarioTable returns the four rows table most tests are written
// against. k1 sums to 1035 and k2 to 690.
func ScenarioTable() *memory.Table {
	return memory.NewTable("scenario",
		map[string]interface{}{"a": "a1", "k1": 123},
		map[string]interface{}{"a": "a2", "b": "b1", "k2": 234},
		map[string]interface{}{"a": "a1", "k1": 345, "k2": 456},
		map[string]interface{}{"a": "a2", "b": "b2", "k1": 567},
	)
}

// ScenarioBag returns a bag with a measure of every kind over the scenario
// table.
func ScenarioBag() *measure.Bag {
	return measure.NewBag(
		measure.NewAggregator("k1"),
		measure.NewAggregator("k2"),
		&measure.Aggregator{Name: "maxK1", ColumnName: "k1", AggregationKey: "max"},
		measure.NewCombinator("sumK1K2", "sum", "k1", "k2"),
		measure.NewFiltrator("filterK1onA1", "k1", filter.IsEqualTo("a", "a1")),
		measure.NewCombinator("ratio", "divide", "filterK1onA1", "k1"),
		&measure.Bucketor{
			Name:            "maxK1K2ByA",
			UnderlyingNames: []string{"k1", "k2"},
			GroupBy:         olap.NewGroupBy("a"),
			AggregationKey:  "max",
		},
		&measure.Columnator{
			Name:            "k1IfB",
			UnderlyingNames: []string{"k1"},
			RequiredColumns: []string{"b"},
		},
	)
}

// CountryTable returns the values of three countries.
func CountryTable() *memory.Table {
	return memory.NewTable("countries",
		map[string]interface{}{"country": "FR", "v": 200},
		map[string]interface{}{"country": "US", "v": 100},
		map[string]interface{}{"country": "CH", "v": 50},
	)
}

// ClubDefinition returns the clubs the countries of CountryTable belong
// to. CH belongs to none.
func ClubDefinition() *decomposition.InMemoryDefinition {
	def := decomposition.NewInMemoryDefinition()
	def.Put("FR", "G8", "G20")
	def.Put("US", "G8", "G20", "NATO")
	return def
}

// ClubBag returns a bag dispatching v from countries to clubs.
func ClubBag() *measure.Bag {
	return measure.NewBag(
		measure.NewAggregator("v"),
		&measure.Dispatchor{
			Name:             "vByClub",
			Underlying:       "v",
			DecompositionKey: decomposition.ManyToManyKey,
			DecompositionOptions: map[string]interface{}{
				decomposition.ElementOption: "country",
				decomposition.GroupOption:   "club",
			},
		},
	)
}

package segment

import (
	"errors"
	"os"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// ErrInvalidCohort is returned for a cohort whose expression does not compile
// or does not evaluate to a bool.
var ErrInvalidCohort = errors.New("segment: invalid cohort")

// Definition names a cohort and its CEL predicate. The expression sees
// r, f, m (int scores), segment (string code), recency, frequency (int),
// monetary (double) and customer (string id).
type Definition struct {
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	Expr string `yaml:"expr" mapstructure:"expr" json:"expr"`
}

// DefaultDefinitions are the reporting cohorts used when none are configured.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "Best Customers", Expr: `segment == "444"`},
		{Name: "Loyal Customers", Expr: `f == 4`},
		{Name: "Big Spenders", Expr: `m == 4`},
		{Name: "Almost Lost", Expr: `segment == "244"`},
		{Name: "Lost Customers", Expr: `segment == "144"`},
		{Name: "Lost Cheap Customers", Expr: `segment == "111"`},
	}
}

type definitionsFile struct {
	Cohorts []Definition `yaml:"cohorts"`
}

// LoadDefinitions reads cohorts from a YAML file of the form
//
//	cohorts:
//	  - name: Best Customers
//	    expr: segment == "444"
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "segment: read %s", path)
	}
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "segment: parse %s", path)
	}
	return f.Cohorts, nil
}

// Cohort is a compiled Definition.
type Cohort struct {
	Definition
	prg cel.Program
}

// Match reports whether c belongs to the cohort.
func (k *Cohort) Match(c models.ScoredCustomer) (bool, error) {
	out, _, err := k.prg.Eval(activation(c))
	if err != nil {
		return false, eris.Wrapf(err, "segment: eval %q", k.Name)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, eris.Wrapf(ErrInvalidCohort, "%q: result is %T, not bool", k.Name, out.Value())
	}
	return v, nil
}

// Set is an ordered collection of compiled cohorts.
type Set struct {
	cohorts []*Cohort
	byName  map[string]*Cohort
}

// Compile builds a Set from defs, keeping their order. Names must be unique
// and non-empty.
func Compile(defs []Definition) (*Set, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	set := &Set{byName: make(map[string]*Cohort, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, eris.Wrap(ErrInvalidCohort, "cohort with empty name")
		}
		if _, dup := set.byName[d.Name]; dup {
			return nil, eris.Wrapf(ErrInvalidCohort, "duplicate cohort %q", d.Name)
		}
		ast, iss := env.Compile(d.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, eris.Wrapf(ErrInvalidCohort, "%q: %v", d.Name, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, eris.Wrapf(ErrInvalidCohort, "%q: result is %s, not bool", d.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidCohort, "%q: %v", d.Name, err)
		}
		k := &Cohort{Definition: d, prg: prg}
		set.cohorts = append(set.cohorts, k)
		set.byName[d.Name] = k
	}
	return set, nil
}

// Names returns the cohort names in definition order.
func (s *Set) Names() []string {
	out := make([]string, len(s.cohorts))
	for i, k := range s.cohorts {
		out[i] = k.Name
	}
	return out
}

// Definitions returns the source definitions in order.
func (s *Set) Definitions() []Definition {
	out := make([]Definition, len(s.cohorts))
	for i, k := range s.cohorts {
		out[i] = k.Definition
	}
	return out
}

// Summarize counts and lists the members of the requested cohorts, or of
// every cohort when names is empty. Members are ordered by monetary value,
// highest first, then by customer id.
func (s *Set) Summarize(scored []models.ScoredCustomer, names ...string) ([]models.CohortSummary, error) {
	selected := s.cohorts
	if len(names) > 0 {
		selected = make([]*Cohort, 0, len(names))
		for _, n := range names {
			k, ok := s.byName[n]
			if !ok {
				return nil, eris.Errorf("segment: unknown cohort %q", n)
			}
			selected = append(selected, k)
		}
	}

	ranked := make([]models.ScoredCustomer, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Monetary != ranked[j].Monetary {
			return ranked[i].Monetary > ranked[j].Monetary
		}
		return ranked[i].CustomerID < ranked[j].CustomerID
	})

	out := make([]models.CohortSummary, 0, len(selected))
	for _, k := range selected {
		sum := models.CohortSummary{Name: k.Name, Expr: k.Expr, Members: []string{}}
		for _, c := range ranked {
			ok, err := k.Match(c)
			if err != nil {
				return nil, err
			}
			if ok {
				sum.Members = append(sum.Members, c.CustomerID)
			}
		}
		sum.Count = len(sum.Members)
		out = append(out, sum)
	}
	return out, nil
}

// Top returns a copy of s keeping at most n members. Count is unchanged.
func Top(s models.CohortSummary, n int) models.CohortSummary {
	if n < 0 || len(s.Members) <= n {
		return s
	}
	out := s
	out.Members = append([]string(nil), s.Members[:n]...)
	return out
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("r", cel.IntType),
		cel.Variable("f", cel.IntType),
		cel.Variable("m", cel.IntType),
		cel.Variable("segment", cel.StringType),
		cel.Variable("recency", cel.IntType),
		cel.Variable("frequency", cel.IntType),
		cel.Variable("monetary", cel.DoubleType),
		cel.Variable("customer", cel.StringType),
	)
	if err != nil {
		return nil, eris.Wrap(err, "segment: cel env")
	}
	return env, nil
}

func activation(c models.ScoredCustomer) map[string]any {
	return map[string]any{
		"r":         int64(c.R),
		"f":         int64(c.F),
		"m":         int64(c.M),
		"segment":   c.Segment,
		"recency":   int64(c.RecencyDays),
		"frequency": int64(c.Frequency),
		"monetary":  c.Monetary,
		"customer":  c.CustomerID,
	}
}

package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapDoc struct {
	fields map[string]string
	nums   map[string]int64
}

func (d mapDoc) Field(name string) (string, bool) {
	v, ok := d.fields[name]
	return v, ok
}

func (d mapDoc) Numeric(name string) (int64, bool) {
	v, ok := d.nums[name]
	return v, ok
}

func pathDoc(p string) mapDoc {
	return mapDoc{fields: map[string]string{FieldPath: p}}
}

// stubFactor returns a fixed score, an error or a panic
type stubFactor struct {
	base
	score    float64
	err      error
	panics   bool
	override bool
}

func newStub(name string, weight, score float64) *stubFactor {
	return &stubFactor{base: base{name: name, weight: NewWeight(weight)}, score: score}
}

func (s *stubFactor) Override() bool { return s.override }

func (s *stubFactor) Compute(Document, int64, Context) (float64, error) {
	if s.panics {
		panic("boom")
	}
	return s.score, s.err
}

func TestBlendBounds(t *testing.T) {
	for _, b := range []float64{0, 0.1, 0.5, 0.93, 1} {
		for _, avg := range []float64{0, 0.25, 0.5, 0.75, 1} {
			got := Blend(b, avg)
			assert.GreaterOrEqual(t, got, b*BaseShare-1e-12)
			assert.LessOrEqual(t, got, b+1e-12)
		}
	}
	assert.InDelta(t, 0.6, Blend(1, 0), 1e-12)
	assert.InDelta(t, 1.0, Blend(1, 1), 1e-12)
}

func TestCompositeWithoutFactorsKeepsBase(t *testing.T) {
	c := NewComposite(NewRegistry(nil), nil)
	assert.InDelta(t, 0.42, c.Score(0.42, pathDoc("a.go"), 1, NewContext("x", "/ws", time.Now())), 1e-12)
}

func TestCompositeWeightedAverage(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(newStub("a", 3, 1.0)))
	require.NoError(t, reg.Register(newStub("b", 1, 0.0)))
	c := NewComposite(reg, nil)

	exp := c.Explain(0.5, pathDoc("a.go"), 1, NewContext("x", "/ws", time.Now()))

	assert.InDelta(t, 0.75, exp.FactorAverage, 1e-12)
	assert.InDelta(t, 0.5*0.6+0.75*0.5*0.4, exp.FinalScore, 1e-12)
	require.Len(t, exp.Factors, 2)
	assert.InDelta(t, 1.0*3/4*0.5*0.4, exp.Factors[0].Contribution, 1e-12)
	assert.InDelta(t, 0, exp.Factors[1].Contribution, 1e-12)
}

func TestFailingFactorsAreNeutral(t *testing.T) {
	failing := newStub("err", 1, 0.9)
	failing.err = errors.New("parse error")
	panicking := newStub("panic", 1, 0.9)
	panicking.panics = true
	nan := newStub("nan", 1, math.NaN())

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(failing))
	require.NoError(t, reg.Register(panicking))
	require.NoError(t, reg.Register(nan))
	c := NewComposite(reg, nil)

	exp := c.Explain(1.0, pathDoc("a.go"), 1, NewContext("x", "/ws", time.Now()))

	for _, fc := range exp.Factors {
		assert.Equal(t, NeutralScore, fc.Score, fc.Name)
	}
	assert.InDelta(t, Blend(1.0, NeutralScore), exp.FinalScore, 1e-12)
}

func TestFailingOverrideIsIdentity(t *testing.T) {
	o := newStub("override", 1, 5)
	o.override = true
	o.err = errors.New("missing field")

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(o))
	c := NewComposite(reg, nil)

	assert.InDelta(t, 0.3, c.Score(0.3, pathDoc("a.go"), 1, NewContext("x", "/ws", time.Now())), 1e-12)
}

func TestOverrideMultipliesFinalScore(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(NewTypeDefinitionBoost(NewWeight(1))))
	require.NoError(t, reg.Register(newStub("flat", 1, 1.0)))
	c := NewComposite(reg, nil)

	doc := mapDoc{fields: map[string]string{
		FieldPath:       "src/UserService.cs",
		FieldDefinition: "UserService",
	}}
	exp := c.Explain(0.5, doc, 1, NewContext("UserService", "/ws", time.Now()))

	assert.InDelta(t, 1.0, exp.FactorAverage, 1e-12)
	assert.InDelta(t, 10.0, exp.Overrides, 1e-12)
	assert.InDelta(t, 5.0, exp.FinalScore, 1e-12)
}

func TestZeroWeightDisablesFactor(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(newStub("low", 0, 0.0)))
	c := NewComposite(reg, nil)

	assert.InDelta(t, 0.8, c.Score(0.8, pathDoc("a.go"), 1, NewContext("x", "/ws", time.Now())), 1e-12)
}

func TestRescoreNeverFiltersAndSorts(t *testing.T) {
	reg := NewDefaultRegistry(nil, TemporalDefault)
	c := NewComposite(reg, nil)

	hits := []BaseHit{
		{DocID: 1, BaseScore: 0.9, Doc: pathDoc("node_modules/lib/index.js")},
		{DocID: 2, BaseScore: 0.8, Doc: pathDoc("src/UserService.cs")},
		{DocID: 3, BaseScore: 0.1, Doc: nil},
		{DocID: 4, BaseScore: 0.5, Doc: pathDoc("tests/UserServiceTests.cs")},
	}

	out, err := c.Rescore(context.Background(), hits, NewContext("UserService", "/ws", time.Now()), true)
	require.NoError(t, err)
	require.Len(t, out, len(hits))

	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Score, out[i].Score)
	}
	for _, s := range out {
		require.NotNil(t, s.Explanation)
		assert.Equal(t, s.Score, s.Explanation.FinalScore)
	}
}

func TestRescoreCancelled(t *testing.T) {
	c := NewComposite(NewDefaultRegistry(nil, TemporalDefault), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Rescore(ctx, []BaseHit{{DocID: 1, BaseScore: 1, Doc: pathDoc("a.go")}}, NewContext("a", "/ws", time.Now()), false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistrySetWeight(t *testing.T) {
	reg := NewDefaultRegistry(map[string]float64{TemporalScoringName: 0.25}, TemporalDefault)

	assert.Equal(t, 0.25, reg.Weights().Snapshot()[TemporalScoringName])

	require.NoError(t, reg.SetWeight(PathRelevanceName, 2))
	f, ok := reg.Factor(PathRelevanceName)
	require.True(t, ok)
	assert.Equal(t, 2.0, f.Weight())
	assert.Equal(t, 2.0, reg.Weights().Snapshot()[PathRelevanceName])

	assert.ErrorIs(t, reg.SetWeight("nope", 1), ErrUnknownFactor)
	assert.ErrorIs(t, reg.SetWeight(PathRelevanceName, -1), ErrInvalidWeight)
	assert.ErrorIs(t, reg.SetWeight(PathRelevanceName, math.Inf(1)), ErrInvalidWeight)
	assert.ErrorIs(t, reg.Register(NewPathRelevance(NewWeight(1))), ErrDuplicateFactor)
}

func TestPathRelevance(t *testing.T) {
	f := NewPathRelevance(NewWeight(1))

	tests := []struct {
		path  string
		query string
		want  float64
	}{
		{"src/UserService.cs", "user", 1.0 * 0.98},
		{"UserService.cs", "user", 0.8},
		{"node_modules/left-pad/index.js", "index", (0.1 + 0.7) / 2 * 0.96},
		{"tests/UserServiceTests.cs", "user", 0.4 * 0.98 * 0.5},
		{"tests/UserServiceTests.cs", "user tests", 0.4 * 0.98},
		{"a/b/c/d/e/f/g/h/i/j/k/l/m/n/o/p/q/r/file.go", "file", 0.7 * 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := f.Compute(pathDoc(tt.path), 1, NewContext(tt.query, "/ws", time.Now()))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := f.Compute(mapDoc{}, 1, NewContext("x", "/ws", time.Now()))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestIsTestPath(t *testing.T) {
	assert.True(t, isTestPath("pkg/foo/foo_test.go"))
	assert.True(t, isTestPath("src/UserServiceTests.cs"))
	assert.True(t, isTestPath("src/app.spec.ts"))
	assert.True(t, isTestPath("test_parser.py"))
	assert.True(t, isTestPath("__tests__/app.js"))
	assert.False(t, isTestPath("src/UserService.cs"))
	assert.False(t, isTestPath("src/latest.go"))
}

func TestTypeDefinitionBoost(t *testing.T) {
	f := NewTypeDefinitionBoost(NewWeight(1))
	now := time.Now()

	tests := []struct {
		name  string
		doc   mapDoc
		query string
		want  float64
	}{
		{
			name:  "ExactDefinition",
			doc:   mapDoc{fields: map[string]string{FieldDefinition: "UserService", FieldTypeNames: "UserService"}},
			query: "UserService",
			want:  10.0,
		},
		{
			name:  "TwoOverlaps",
			doc:   mapDoc{fields: map[string]string{FieldTypeNames: "UserService UserRepository Order"}},
			query: "user",
			want:  2.0,
		},
		{
			name:  "Capped",
			doc:   mapDoc{fields: map[string]string{FieldTypeNames: "UserA UserB UserC UserD UserE UserF"}},
			query: "user",
			want:  3.0,
		},
		{
			name:  "NoOverlap",
			doc:   mapDoc{fields: map[string]string{FieldTypeNames: "Order Invoice"}},
			query: "user",
			want:  1.0,
		},
		{
			name:  "NoMetadata",
			doc:   mapDoc{},
			query: "user",
			want:  1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Compute(tt.doc, 1, NewContext(tt.query, "/ws", now))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
	assert.True(t, f.Override())
}

func TestInterfaceImplementation(t *testing.T) {
	f := NewInterfaceImplementation(NewWeight(1))
	now := time.Now()

	doc := func(p, content string) mapDoc {
		return mapDoc{fields: map[string]string{FieldPath: p, FieldContent: content}}
	}

	tests := []struct {
		name  string
		doc   mapDoc
		query string
		want  float64
	}{
		{"Implementation", doc("src/Services/UserService.cs", "public class UserService : IUserService {}"), "IUserService", 1.0},
		{"MockPath", doc("tests/Mocks/MockUserService.cs", "public class MockUserService : IUserService {}"), "IUserService", 0.1},
		{"MockContent", doc("src/Setup.cs", "var svc = new Mock<IUserService>();"), "IUserService", 0.1},
		{"VendoredImplementation", doc("vendor/acme/UserService.cs", "public class UserService : IUserService {}"), "IUserService", 0.8},
		{"ExampleImplementation", doc("examples/UserServiceImpl.java", "class UserServiceImpl implements IUserService {}"), "IUserService", 0.8},
		{"UnknownDirImplementation", doc("modules/users/UserService.cs", "public class UserService : IUserService {}"), "IUserService", 1.0},
		{"NameOnly", doc("src/UserService.cs", "public class UserService {}"), "IUserService", 0.8},
		{"GenericSuffix", doc("src/OrderService.cs", "public class OrderService {}"), "IUserService", 0.6},
		{"Unrelated", doc("src/Program.cs", "static void Main() {}"), "IUserService", NeutralScore},
		{"NotInterfaceQuery", doc("src/UserService.cs", ""), "user service", NeutralScore},
		{"LowercaseQuery", doc("src/UserService.cs", ""), "iuserService", NeutralScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Compute(tt.doc, 1, NewContext(tt.query, "/ws", now))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestTemporalScoring(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	doc := func(age time.Duration, access int64) mapDoc {
		return mapDoc{nums: map[string]int64{
			FieldCreated:     now.Add(-400 * day).UnixMilli(),
			FieldModified:    now.Add(-age).UnixMilli(),
			FieldAccessCount: access,
		}}
	}

	tests := []struct {
		name string
		opts TemporalOptions
		doc  mapDoc
		want float64
	}{
		{"Fresh", TemporalDefault, doc(0, 0), 1.0},
		{"OneHalfLife", TemporalDefault, doc(30*day, 0), 0.95},
		{"Aggressive", TemporalAggressive, doc(7*day, 0), 0.9},
		{"GentleLinear", TemporalGentle, doc(90*day, 0), 0.9},
		{"Gaussian", TemporalOptions{DecayRate: 0.95, HalfLife: 30 * day, Decay: DecayGaussian}, doc(30*day, 0), math.Exp(-1)},
		{"Floor", TemporalAggressive, doc(3650*day, 0), 0.1},
		{"AccessBoost", TemporalDefault, doc(30*day, 9), 0.95 * 1.05},
		{"BoostClampedToOne", TemporalDefault, doc(0, 1_000_000), 1.0},
		{"FutureTimestamp", TemporalDefault, doc(-day, 0), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewTemporalScoring(NewWeight(1), tt.opts)
			got, err := f.Compute(tt.doc, 1, NewContext("x", "/ws", now))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := NewTemporalScoring(NewWeight(1), TemporalDefault).Compute(mapDoc{}, 1, NewContext("x", "/ws", now))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestTemporalPreset(t *testing.T) {
	opts, err := TemporalPreset("gentle")
	require.NoError(t, err)
	assert.Equal(t, TemporalGentle, opts)

	_, err = TemporalPreset("sideways")
	assert.Error(t, err)
}

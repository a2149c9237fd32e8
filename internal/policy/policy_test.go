package policy

import (
	"testing"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

func TestDerive_SimplifiedPolygonWithClip(t *testing.T) {
	p := Derive(true, model.GeometryPolygon, true, nil)
	if !p.Simplify {
		t.Fatalf("simplify=false want true")
	}
	if p.QueryLimit == nil || *p.QueryLimit != 1000 {
		t.Fatalf("query_limit=%v want 1000", p.QueryLimit)
	}
	if p.BufferSize == nil || *p.BufferSize != 1 {
		t.Fatalf("buffer_size=%v want 1", p.BufferSize)
	}
}

func TestDerive_PointNeverBuffered(t *testing.T) {
	p := Derive(false, model.GeometryPoint, true, nil)
	if p.Simplify || p.QueryLimit != nil || p.BufferSize != nil {
		t.Fatalf("got %+v want zero params", p)
	}
}

func TestDerive_BufferOnlyForLinearAndAreal(t *testing.T) {
	cases := map[model.GeometryType]bool{
		model.GeometryUnknown:         false,
		model.GeometryPoint:           false,
		model.GeometryMultiPoint:      false,
		model.GeometryLineString:      true,
		model.GeometryMultiLineString: true,
		model.GeometryPolygon:         true,
		model.GeometryMultiPolygon:    true,
	}
	for g, want := range cases {
		if got := Derive(false, g, true, nil).BufferSize != nil; got != want {
			t.Fatalf("%s clip=true buffered=%v want %v", g, got, want)
		}
		if Derive(false, g, false, nil).BufferSize != nil {
			t.Fatalf("%s clip=false must not buffer", g)
		}
	}
}

func TestDerive_DeclaredLimitWins(t *testing.T) {
	limit := uint32(50)
	p := Derive(true, model.GeometryLineString, false, &limit)
	if p.QueryLimit == nil || *p.QueryLimit != 50 {
		t.Fatalf("query_limit=%v want 50", p.QueryLimit)
	}
	limit = 7
	if *p.QueryLimit != 50 {
		t.Fatalf("derived params alias the declared limit")
	}

	p = Derive(false, model.GeometryLineString, false, &limit)
	if p.QueryLimit == nil || *p.QueryLimit != 7 {
		t.Fatalf("declared limit without simplify: got %v want 7", p.QueryLimit)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	ts := model.Tileset{
		Name: "roads",
		Layers: []model.Layer{
			{Name: "roads", GeometryType: model.GeometryLineString, LayerParams: model.LayerParams{Simplify: true}},
			{Name: "pois", GeometryType: model.GeometryPoint},
		},
	}
	out := Apply(ts, true, nil)
	if ts.Layers[0].QueryLimit != nil {
		t.Fatalf("input tileset mutated")
	}
	if out.Layers[0].BufferSize == nil || out.Layers[0].QueryLimit == nil {
		t.Fatalf("roads params=%+v", out.Layers[0].LayerParams)
	}
	if out.Layers[1].BufferSize != nil {
		t.Fatalf("pois must not be buffered")
	}
}

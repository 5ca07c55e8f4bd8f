package ranges_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/ranges"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry_Lookup(t *testing.T) {
	Convey("Given the built-in registry", t, func() {
		reg := ranges.Default()

		Convey("When looking up a known subtype", func() {
			So(reg.Lookup(model.DomainEconomy, "cpi"), ShouldResemble, ranges.Range{Min: -5, Max: 100})
			So(reg.Lookup(model.DomainEarthquakes, "Depth"), ShouldResemble, ranges.Range{Min: 0, Max: 700})
		})

		Convey("When the subtype is unknown or empty", func() {
			Convey("Then the domain default applies", func() {
				So(reg.Lookup(model.DomainEconomy, "unemployment"), ShouldResemble, ranges.Range{Min: -50, Max: 100})
				So(reg.Lookup(model.DomainEarthquakes, ""), ShouldResemble, ranges.Range{Min: 0, Max: 10})
			})
		})

		Convey("When the domain is unknown", func() {
			Convey("Then the universal range applies", func() {
				So(reg.Lookup("weather", "temperature"), ShouldResemble, ranges.Universal)
				So(reg.Has("weather"), ShouldBeFalse)
			})
		})

		Convey("Then the domains are listed in order", func() {
			So(reg.Domains(), ShouldResemble, []model.Domain{
				model.DomainEarthquakes, model.DomainEconomy, model.DomainPolitics, model.DomainTechnology,
			})
		})
	})
}

func TestRegistry_New(t *testing.T) {
	Convey("Given a custom table", t, func() {
		Convey("When a range is inverted", func() {
			_, err := ranges.New(ranges.Table{"sports": {"score": {Min: 10, Max: 1}}})

			Convey("Then construction fails", func() {
				So(errors.Is(err, ranges.ErrInvalidRange), ShouldBeTrue)
			})
		})

		Convey("When a domain has subtypes but no default", func() {
			reg, err := ranges.New(ranges.Table{"sports": {"goals": {Min: 0, Max: 20}}})
			So(err, ShouldBeNil)

			Convey("Then unknown subtypes fall back to the universal range", func() {
				So(reg.Lookup("sports", "goals"), ShouldResemble, ranges.Range{Min: 0, Max: 20})
				So(reg.Lookup("sports", "fouls"), ShouldResemble, ranges.Universal)
			})
		})

		Convey("When a degenerate range is configured", func() {
			_, err := ranges.New(ranges.Table{"fixed": {ranges.DefaultKey: {Min: 5, Max: 5}}})

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestRegistry_Merge(t *testing.T) {
	Convey("Given the built-in registry and an overlay", t, func() {
		base := ranges.Default()
		overlay := ranges.Table{
			model.DomainEconomy: {"cpi": {Min: 0, Max: 20}},
			"weather":           {ranges.DefaultKey: {Min: -60, Max: 60}},
		}

		merged, err := base.Merge(overlay)
		So(err, ShouldBeNil)

		Convey("Then overlay entries win", func() {
			So(merged.Lookup(model.DomainEconomy, "cpi"), ShouldResemble, ranges.Range{Min: 0, Max: 20})
			So(merged.Lookup("weather", ""), ShouldResemble, ranges.Range{Min: -60, Max: 60})
		})

		Convey("And untouched entries survive", func() {
			So(merged.Lookup(model.DomainEconomy, "gdp"), ShouldResemble, ranges.Range{Min: -20, Max: 20})
		})

		Convey("And the base registry is not modified", func() {
			So(base.Lookup(model.DomainEconomy, "cpi"), ShouldResemble, ranges.Range{Min: -5, Max: 100})
			So(base.Has("weather"), ShouldBeFalse)
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given a YAML range table", t, func() {
		doc := `
economy:
  default: {min: -10, max: 10}
sports:
  goals: {min: 0, max: 15}
`
		Convey("When parsing it", func() {
			table, err := ranges.Parse(strings.NewReader(doc))
			So(err, ShouldBeNil)
			So(table["sports"]["goals"], ShouldResemble, ranges.Range{Min: 0, Max: 15})
			So(table[model.DomainEconomy][ranges.DefaultKey], ShouldResemble, ranges.Range{Min: -10, Max: 10})
		})

		Convey("When a range carries an unknown field", func() {
			_, err := ranges.Parse(strings.NewReader("economy:\n  cpi: {low: 1, max: 2}\n"))
			So(errors.Is(err, ranges.ErrParse), ShouldBeTrue)
		})

		Convey("When loading it from a file", func() {
			path := filepath.Join(t.TempDir(), "ranges.yaml")
			So(os.WriteFile(path, []byte(doc), 0o600), ShouldBeNil)

			reg, err := ranges.LoadFile(path)
			So(err, ShouldBeNil)

			Convey("Then it is layered over the built-in table", func() {
				So(reg.Lookup(model.DomainEconomy, ""), ShouldResemble, ranges.Range{Min: -10, Max: 10})
				So(reg.Lookup(model.DomainEconomy, "gdp"), ShouldResemble, ranges.Range{Min: -20, Max: 20})
				So(reg.Has("sports"), ShouldBeTrue)
			})
		})
	})
}

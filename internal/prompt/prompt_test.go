package prompt_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/okian/tempusrecords/internal/prompt"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPrompter(t *testing.T) {
	Convey("Given an operator typing answers", t, func() {
		var out bytes.Buffer

		Convey("When the first answers are invalid", func() {
			p := prompt.New(strings.NewReader("abc\n\n-5\n 170012 \n3\nx\n2\n"), &out)
			id, err := p.PlayerID()
			So(err, ShouldBeNil)
			class, err := p.Class()
			So(err, ShouldBeNil)

			Convey("Then the prompter re-asks until they are valid", func() {
				So(id, ShouldEqual, model.PlayerID(170012))
				So(class, ShouldEqual, model.ClassDemoman)
				So(strings.Count(out.String(), "Invalid input. Please enter a valid integer player ID."), ShouldEqual, 3)
				So(strings.Count(out.String(), "Invalid input. Please enter 1 or 2."), ShouldEqual, 2)
				So(out.String(), ShouldContainSubstring, "1 - Soldier\n2 - Demoman\n")
			})
		})

		Convey("When 1 is chosen", func() {
			p := prompt.New(strings.NewReader("1\n"), &out)
			class, err := p.Class()

			Convey("Then the class is soldier", func() {
				So(err, ShouldBeNil)
				So(class, ShouldEqual, model.ClassSoldier)
			})
		})

		Convey("When input ends before a valid answer", func() {
			p := prompt.New(strings.NewReader("nope\n"), &out)
			_, err := p.PlayerID()

			Convey("Then ErrNoInput is returned", func() {
				So(errors.Is(err, prompt.ErrNoInput), ShouldBeTrue)
			})
		})

		Convey("When waiting for Enter on closed input", func() {
			p := prompt.New(strings.NewReader(""), &out)
			p.WaitEnter("Press Enter to exit...")

			Convey("Then it returns after printing the message", func() {
				So(out.String(), ShouldEqual, "Press Enter to exit...")
			})
		})
	})
}

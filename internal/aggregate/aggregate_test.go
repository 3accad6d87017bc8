package aggregate_test

import (
	"reflect"
	"testing"

	"github.com/bk-ru/parser/internal/aggregate"
)

func TestMergeDeduplicatesAndSorts(t *testing.T) {
	a := aggregate.New()
	a.Merge([]string{"b@x.test", "a@x.test"}, []string{"+2", "+1"})
	a.Merge([]string{"a@x.test"}, []string{"+1"})

	wantEmails := []string{"a@x.test", "b@x.test"}
	if got := a.Emails(); !reflect.DeepEqual(got, wantEmails) {
		t.Errorf("Emails() = %v, want %v", got, wantEmails)
	}

	wantPhones := []string{"+1", "+2"}
	if got := a.Phones(); !reflect.DeepEqual(got, wantPhones) {
		t.Errorf("Phones() = %v, want %v", got, wantPhones)
	}
}

func TestEmptyAggregator(t *testing.T) {
	a := aggregate.New()
	if got := a.Emails(); len(got) != 0 {
		t.Errorf("Emails() = %v, want empty", got)
	}
	if got := a.Phones(); len(got) != 0 {
		t.Errorf("Phones() = %v, want empty", got)
	}
}

package source

import (
	"fmt"
	"strconv"

	"github.com/Sternrassler/people-pager/pkg/pagination"
)

// PeopleResponse is the JSON body of one page of the people API.
type PeopleResponse struct {
	People []pagination.Record `json:"people"`
	Next   string              `json:"next,omitempty"`
}

var (
	firstNames = []string{"Ada", "Alan", "Barbara", "Claude", "Dennis", "Edsger", "Frances", "Grace", "Hedy", "John", "Ken", "Margaret"}
	lastNames  = []string{"Lovelace", "Turing", "Liskov", "Shannon", "Ritchie", "Dijkstra", "Allen", "Hopper", "Lamarr", "McCarthy", "Thompson", "Hamilton"}
)

// GeneratePeople returns n deterministic records with IDs "1".."n".
func GeneratePeople(n int) []pagination.Record {
	return GeneratePeopleFrom(0, n)
}

// GeneratePeopleFrom returns the n records that follow the first start
// records of the generated sequence.
func GeneratePeopleFrom(start, n int) []pagination.Record {
	if n <= 0 {
		return []pagination.Record{}
	}
	records := make([]pagination.Record, 0, n)
	for i := start; i < start+n; i++ {
		first := firstNames[i%len(firstNames)]
		last := lastNames[(i/len(firstNames))%len(lastNames)]
		records = append(records, pagination.Record{
			ID:   strconv.Itoa(i + 1),
			Name: fmt.Sprintf("%s %s", first, last),
		})
	}
	return records
}

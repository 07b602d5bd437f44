package metasync

import (
	"regexp"
	"sort"
	"time"
)

var datedTablePattern = regexp.MustCompile(`^(.+)_([0-9]{8})$`)

type datedTable struct {
	name string
	day  time.Time
}

// AbstractTableNames compresses a warehouse table listing into an
// EventsTableInfo. The dominant `prefix_YYYYMMDD` family becomes the
// pattern, count, date range and a small bounded sample; every other name
// lands in the irregular bucket instead of being dropped. maxExamples
// bounds the sample (minimum two, so the first and last table are always
// reconstructible by eye).
func AbstractTableNames(names []string, maxExamples int) EventsTableInfo {
	if maxExamples < 2 {
		maxExamples = 2
	}

	families := map[string][]datedTable{}
	irregular := make([]string, 0)
	for _, name := range names {
		match := datedTablePattern.FindStringSubmatch(name)
		if match == nil {
			irregular = append(irregular, name)
			continue
		}
		day, err := time.Parse(dateLayout, match[2])
		if err != nil {
			irregular = append(irregular, name)
			continue
		}
		families[match[1]] = append(families[match[1]], datedTable{name: name, day: day})
	}

	dominant := ""
	for prefix, members := range families {
		if len(members) > len(families[dominant]) || (len(members) == len(families[dominant]) && (dominant == "" || prefix < dominant)) {
			dominant = prefix
		}
	}
	if dominant == "" {
		sort.Strings(irregular)
		return EventsTableInfo{Irregular: irregular}
	}

	for prefix, members := range families {
		if prefix == dominant {
			continue
		}
		for _, member := range members {
			irregular = append(irregular, member.name)
		}
	}
	sort.Strings(irregular)

	dated := families[dominant]
	sort.Slice(dated, func(i, j int) bool { return dated[i].day.Before(dated[j].day) })

	examples := make([]string, 0, maxExamples)
	if len(dated) <= maxExamples {
		for _, member := range dated {
			examples = append(examples, member.name)
		}
	} else {
		for _, member := range dated[:maxExamples-1] {
			examples = append(examples, member.name)
		}
		examples = append(examples, dated[len(dated)-1].name)
	}

	return EventsTableInfo{
		Count:       len(dated),
		NamePattern: dominant + "_" + dateSuffixToken,
		DateRange: DateRange{
			Start: dated[0].day.Format("2006-01-02"),
			End:   dated[len(dated)-1].day.Format("2006-01-02"),
		},
		Examples:  examples,
		Irregular: irregular,
	}
}

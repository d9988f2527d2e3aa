package domain

// Band is a display band for a rating, used by reporting surfaces.
type Band struct {
	Name  string
	Stars int
	Min   float64 // inclusive lower bound on the external scale
}

// bandTable is ordered by descending Min; lookup takes the first band
// whose floor the rating clears. The Expert floor at 1750 is the
// ceiling of the Proficient band.
var bandTable = []Band{
	{Name: "Expert", Stars: 5, Min: 1750},
	{Name: "Proficient", Stars: 4, Min: 1650},
	{Name: "Competent", Stars: 3, Min: 1500},
	{Name: "Developing", Stars: 2, Min: 1350},
	{Name: "Novice", Stars: 1, Min: RatingMin},
}

// BandFor maps a rating to its display band.
func BandFor(rating float64) Band {
	for _, b := range bandTable {
		if rating >= b.Min {
			return b
		}
	}
	return bandTable[len(bandTable)-1]
}

// Bands returns the ordered band table.
func Bands() []Band {
	out := make([]Band, len(bandTable))
	copy(out, bandTable)
	return out
}

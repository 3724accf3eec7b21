package domain

import "strconv"

// Region is the delivery code sent to the backend; it drives shipping cost.
type Region int

const DefaultRegion Region = 1

func (r Region) Valid() bool {
	return r > 0
}

func (r Region) String() string {
	return strconv.Itoa(int(r))
}

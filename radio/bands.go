package radio

import "strconv"

// BandUnknown is reported when no band can be derived for a channel.
const BandUnknown = "unknown"

// channelRange maps an inclusive downlink channel range onto an operating band.
type channelRange struct {
	Band int
	Min  int
	Max  int
}

// lteBandTable lists E-UTRA downlink EARFCN ranges (3GPP TS 36.101 table 5.7.3-1).
var lteBandTable = []channelRange{
	{Band: 1, Min: 0, Max: 599},
	{Band: 2, Min: 600, Max: 1199},
	{Band: 3, Min: 1200, Max: 1949},
	{Band: 4, Min: 1950, Max: 2399},
	{Band: 5, Min: 2400, Max: 2649},
	{Band: 6, Min: 2650, Max: 2749},
	{Band: 7, Min: 2750, Max: 3449},
	{Band: 8, Min: 3450, Max: 3799},
	{Band: 9, Min: 3800, Max: 4149},
	{Band: 10, Min: 4150, Max: 4749},
	{Band: 11, Min: 4750, Max: 4949},
	{Band: 12, Min: 5010, Max: 5179},
	{Band: 13, Min: 5180, Max: 5279},
	{Band: 14, Min: 5280, Max: 5379},
	{Band: 17, Min: 5730, Max: 5849},
	{Band: 18, Min: 5850, Max: 5999},
	{Band: 19, Min: 6000, Max: 6149},
	{Band: 20, Min: 6150, Max: 6449},
	{Band: 21, Min: 6450, Max: 6599},
	{Band: 25, Min: 8040, Max: 8689},
	{Band: 26, Min: 8690, Max: 9039},
	{Band: 28, Min: 9210, Max: 9659},
	{Band: 29, Min: 9660, Max: 9769},
	{Band: 30, Min: 9770, Max: 9869},
	{Band: 32, Min: 9920, Max: 10359},
	{Band: 34, Min: 36200, Max: 36349},
	{Band: 38, Min: 37750, Max: 38249},
	{Band: 39, Min: 38250, Max: 38649},
	{Band: 40, Min: 38650, Max: 39649},
	{Band: 41, Min: 39650, Max: 41589},
	{Band: 42, Min: 41590, Max: 43589},
	{Band: 43, Min: 43590, Max: 45589},
	{Band: 46, Min: 46790, Max: 54539},
	{Band: 48, Min: 55240, Max: 56739},
	{Band: 66, Min: 66436, Max: 67335},
	{Band: 71, Min: 68586, Max: 68935},
}

// nrBandTable lists NR downlink NR-ARFCN ranges (3GPP TS 38.101-1/-2). Several
// bands overlap; the first match wins, so the more common band is listed first.
var nrBandTable = []channelRange{
	{Band: 1, Min: 422000, Max: 434000},
	{Band: 2, Min: 386000, Max: 398000},
	{Band: 3, Min: 361000, Max: 376000},
	{Band: 5, Min: 173800, Max: 178800},
	{Band: 7, Min: 524000, Max: 538000},
	{Band: 8, Min: 185000, Max: 192000},
	{Band: 12, Min: 145800, Max: 149200},
	{Band: 14, Min: 151600, Max: 153600},
	{Band: 20, Min: 158200, Max: 164200},
	{Band: 25, Min: 386000, Max: 399000},
	{Band: 28, Min: 151600, Max: 160600},
	{Band: 38, Min: 514000, Max: 524000},
	{Band: 40, Min: 460000, Max: 480000},
	{Band: 41, Min: 499200, Max: 537999},
	{Band: 48, Min: 636667, Max: 646666},
	{Band: 66, Min: 422000, Max: 440000},
	{Band: 71, Min: 123400, Max: 130400},
	{Band: 78, Min: 620000, Max: 653333},
	{Band: 77, Min: 620000, Max: 680000},
	{Band: 79, Min: 693334, Max: 733333},
	{Band: 257, Min: 2054166, Max: 2104165},
	{Band: 258, Min: 2016667, Max: 2070832},
	{Band: 261, Min: 2070833, Max: 2084999},
	{Band: 260, Min: 2229166, Max: 2279165},
}

// LTEBandForEARFCN returns "b<N>" for the band containing the EARFCN.
func LTEBandForEARFCN(earfcn int) string {
	if band, ok := lookupBand(lteBandTable, earfcn); ok {
		return bandLabel("b", band)
	}
	return BandUnknown
}

// NRBandForARFCN returns "n<N>" for the band containing the NR-ARFCN.
func NRBandForARFCN(arfcn int) string {
	if band, ok := lookupBand(nrBandTable, arfcn); ok {
		return bandLabel("n", band)
	}
	return BandUnknown
}

func lookupBand(table []channelRange, channel int) (int, bool) {
	for _, r := range table {
		if channel >= r.Min && channel <= r.Max {
			return r.Band, true
		}
	}
	return 0, false
}

func bandLabel(prefix string, band int) string {
	return prefix + strconv.Itoa(band)
}

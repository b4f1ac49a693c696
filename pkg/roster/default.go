package roster

// Default returns the built-in roster of EIA regions and interconnections.
//
// Ten US balancing authorities are generation-only and never report demand,
// so they are not members of anything. OVEC and SEC report demand but their
// data is poor and they are left off the usable list, which drops them from
// every aggregation that names them.
func Default() *Roster {
	return &Roster{
		Targets: []Target{
			// regions
			{Name: "CAL", Members: []string{"BANC", "CISO", "IID", "LDWP", "TIDC"}},
			{Name: "CAR", Members: []string{"CPLE", "CPLW", "DUK", "SC", "SCEG"}},
			{Name: "CENT", Members: []string{"SPA", "SWPP"}},
			{Name: "FLA", Members: []string{"FMPP", "FPC", "FPL", "GVL", "HST", "JEA", "NSB", "SEC", "TAL", "TEC"}},
			{Name: "MIDA", Members: []string{"OVEC", "PJM"}},
			{Name: "MIDW", Members: []string{"AECI", "LGEE", "MISO"}},
			{Name: "NE", Members: []string{"ISNE"}},
			{Name: "NY", Members: []string{"NYIS"}},
			{Name: "NW", Members: []string{
				"AVA", "BPAT", "CHPD", "DOPD", "GCPD", "IPCO", "NEVP", "NWMT",
				"PACE", "PACW", "PGE", "PSCO", "PSEI", "SCL", "TPWR", "WACM", "WAUW",
			}},
			{Name: "SE", Members: []string{"AEC", "SOCO"}},
			{Name: "SW", Members: []string{"AZPS", "EPE", "PNM", "SRP", "TEPC", "WALC"}},
			{Name: "TEN", Members: []string{"TVA"}},
			{Name: "TEX", Members: []string{"ERCO"}},

			// interconnections
			{Name: "EASTERN", Members: []string{
				"AEC", "AECI", "CPLE", "CPLW",
				"DUK", "FMPP", "FPC",
				"FPL", "GVL", "HST", "ISNE",
				"JEA", "LGEE", "MISO", "NSB",
				"NYIS", "OVEC", "PJM", "SC",
				"SCEG", "SEC", "SOCO",
				"SPA", "SWPP", "TAL", "TEC",
				"TVA",
			}},
			{Name: "TEXAS", Members: []string{"ERCO"}},
			{Name: "WESTERN", Members: []string{
				"AVA", "AZPS", "BANC", "BPAT",
				"CHPD", "CISO", "DOPD",
				"EPE", "GCPD",
				"IID",
				"IPCO", "LDWP", "NEVP", "NWMT",
				"PACE", "PACW", "PGE", "PNM",
				"PSCO", "PSEI", "SCL", "SRP",
				"TEPC", "TIDC", "TPWR", "WACM",
				"WALC", "WAUW",
			}},
		},
		Usable: []string{
			"AEC", "AECI", "CPLE", "CPLW",
			"DUK", "FMPP", "FPC",
			"FPL", "GVL", "HST", "ISNE",
			"JEA", "LGEE", "MISO", "NSB",
			"NYIS", "PJM", "SC",
			"SCEG", "SOCO",
			"SPA", "SWPP", "TAL", "TEC",
			"TVA",
			"ERCO",
			"AVA", "AZPS", "BANC", "BPAT",
			"CHPD", "CISO", "DOPD",
			"EPE", "GCPD",
			"IID",
			"IPCO", "LDWP", "NEVP", "NWMT",
			"PACE", "PACW", "PGE", "PNM",
			"PSCO", "PSEI", "SCL", "SRP",
			"TEPC", "TIDC", "TPWR", "WACM",
			"WALC", "WAUW",
		},
	}
}

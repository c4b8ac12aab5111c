// Package harness runs quadratic funding test vectors against the matching
// engine and compares the results with golden snapshots.
//
// # Vector Format
//
// Vectors are YAML files:
//
//	name: saturation
//	description: "Subsidies above the pool are scaled down to it"
//	pool: "7"
//	decimals: 0
//	options:
//	  minimum: "2"            # optional, base units
//	  cap: "6"                # optional, base units
//	  ignore_saturation: false
//	contributions:
//	  - { recipient: A, contributor: d1, amount: "1" }
//	expect:
//	  matched: { A: "6", C: "1" }   # subset: only listed recipients
//	  total: "7"
//
// Amounts are decimal strings so token amounts above 2^53 survive YAML.
//
// # Checks
//
// Besides the vector's own expectations every run checks that no recipient
// is matched above the cap and that, unless saturation is ignored, the
// total matched never exceeds the pool.
//
// # Golden Snapshots
//
// Snapshot renders a result as canonical JSON. RunWithGolden compares it to
// testdata/golden/{name}.golden; regenerate with:
//
//	go test ./internal/harness -update
package harness

// Package indexer turns ingested changes into persisted state.
//
// Every change is stamped with a logical seq and written to the namespace
// store together with its change-log row. Single donation inserts are
// buffered in a DonationQueue and written in chunks by a periodic flush job;
// a second periodic job recomputes donation aggregates from scratch. A
// RoundTokenCache memoizes each round's match token.
package indexer

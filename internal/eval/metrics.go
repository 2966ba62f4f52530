package eval

import (
	"context"
	"time"
)

// ClvBucket summarizes one window (overall, or one sport) of pick CLV
// coverage, matching metrics.py's _compute_bucket.
type ClvBucket struct {
	TotalPicks           int      `json:"total_picks"`
	ClvComputedCount     int      `json:"clv_computed_count"`
	ClvCoverageRate      float64  `json:"clv_coverage_rate"`
	MedianMarketCLV      *float64 `json:"median_market_clv"`
	MeanMarketCLV        *float64 `json:"mean_market_clv"`
	MedianBookCLV        *float64 `json:"median_book_clv"`
	MeanBookCLV          *float64 `json:"mean_book_clv"`
	PctPositiveMarketCLV float64  `json:"pct_positive_market_clv"`
}

func computeBucket(rows []struct {
	computed  bool
	marketCLV *float64
	bookCLV   *float64
}) ClvBucket {
	total := len(rows)
	computed := 0
	var marketValues, bookValues []float64
	for _, r := range rows {
		if r.computed {
			computed++
		}
		if r.marketCLV != nil {
			marketValues = append(marketValues, *r.marketCLV)
		}
		if r.bookCLV != nil {
			bookValues = append(bookValues, *r.bookCLV)
		}
	}
	positives := 0
	for _, v := range marketValues {
		if v > 0 {
			positives++
		}
	}

	b := ClvBucket{TotalPicks: total, ClvComputedCount: computed}
	if total > 0 {
		b.ClvCoverageRate = float64(computed) / float64(total)
	}
	if len(marketValues) > 0 {
		mean := mean(marketValues)
		median := medianOf(marketValues)
		b.MeanMarketCLV = &mean
		b.MedianMarketCLV = &median
		b.PctPositiveMarketCLV = float64(positives) / float64(len(marketValues))
	}
	if len(bookValues) > 0 {
		mean := mean(bookValues)
		median := medianOf(bookValues)
		b.MeanBookCLV = &mean
		b.MedianBookCLV = &median
	}
	return b
}

// EvalSummary is the condensed pqs/gates digest nested under ClvHealth,
// matching compute_clv_health's eval_summary block.
type EvalSummary struct {
	EvalWindowStart time.Time         `json:"eval_window_start"`
	EvalWindowEnd   time.Time         `json:"eval_window_end"`
	PQSSpearman     *float64          `json:"pqs_spearman"`
	PQSBinTable     []PQSClvBin       `json:"pqs_bin_table"`
	TopDropReasons  []DropReasonCount `json:"top_drop_reasons"`
}

// ClvHealth is GET /metrics/clv's full response, matching
// compute_clv_health.
type ClvHealth struct {
	Days    int       `json:"days"`
	Window  time.Time `json:"window_start"`
	WindowEnd time.Time `json:"window_end"`
	ClvBucket
	BySport    map[string]ClvBucket `json:"by_sport"`
	KeepRate   float64              `json:"keep_rate"`
	AvgPQS     float64              `json:"avg_pqs"`
	EvalSummary EvalSummary         `json:"eval_summary"`
}

// ClvHealth computes the windowed CLV coverage/quality report plus the
// eval digest, matching services/metrics.py's compute_clv_health.
func (s *Service) ClvHealth(ctx context.Context, days int, now time.Time) (ClvHealth, error) {
	windowStart := now.Add(-time.Duration(days) * 24 * time.Hour)

	windowRows, err := s.rows.MetricsWindowRows(ctx, windowStart, now)
	if err != nil {
		return ClvHealth{}, err
	}

	type bucketRow = struct {
		computed  bool
		marketCLV *float64
		bookCLV   *float64
	}
	var all []bucketRow
	bySportRows := map[string][]bucketRow{}
	for _, r := range windowRows {
		br := bucketRow{computed: r.ClvComputed, marketCLV: r.MarketCLVBps, bookCLV: r.BookCLVBps}
		all = append(all, br)
		bySportRows[r.SportKey] = append(bySportRows[r.SportKey], br)
	}

	overall := computeBucket(all)
	bySport := map[string]ClvBucket{}
	for sportKey, rows := range bySportRows {
		bySport[sportKey] = computeBucket(rows)
	}

	pqsVals, decisions, err := s.rows.AllScoresForVersion(ctx, s.cfg.PQSVersion)
	if err != nil {
		return ClvHealth{}, err
	}
	keepRate := 0.0
	avgPQS := 0.0
	if len(decisions) > 0 {
		kept := 0
		for _, d := range decisions {
			if keepWarn[d] {
				kept++
			}
		}
		keepRate = float64(kept) / float64(len(decisions))
		avgPQS = mean(pqsVals)
	}

	pqsReport, err := s.PQSClv(ctx, 5)
	if err != nil {
		return ClvHealth{}, err
	}
	gatesReport, err := s.Gates(ctx, 5)
	if err != nil {
		return ClvHealth{}, err
	}
	binTable := pqsReport.Bins
	if len(binTable) > 3 {
		binTable = binTable[:3]
	}
	topDrops := gatesReport.DropReasons
	if len(topDrops) > 3 {
		topDrops = topDrops[:3]
	}

	return ClvHealth{
		Days:      days,
		Window:    windowStart,
		WindowEnd: now,
		ClvBucket: overall,
		BySport:   bySport,
		KeepRate:  keepRate,
		AvgPQS:    avgPQS,
		EvalSummary: EvalSummary{
			EvalWindowStart: windowStart,
			EvalWindowEnd:   now,
			PQSSpearman:     pqsReport.Spearman,
			PQSBinTable:     binTable,
			TopDropReasons:  topDrops,
		},
	}, nil
}

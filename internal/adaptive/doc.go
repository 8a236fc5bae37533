// Package adaptive picks drill difficulty (sequence length and tempo) so a
// trainee's performance stays near a target fitness.
//
// A Scheduler owns one TempoCalibrator per difficulty level. Each calibrator
// keeps exponentially smoothed response times in evenly spaced tempo bins
// and fits a non-increasing curve through them with weighted
// pool-adjacent-violators. Candidates are scored against the target and
// sampled 70/20/10 among the nearest match, an easier and a harder item.
//
// Basic usage:
//
//	s, err := adaptive.New(adaptive.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	c := s.Next()
//	// present c.Level notes at c.Tempo BPM ...
//	s.Feedback(true, 1.4)
//	stats := s.Update()
//
// A Scheduler is not safe for concurrent use; create one per trainee.
package adaptive

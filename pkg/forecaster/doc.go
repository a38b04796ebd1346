/*
Package forecaster predicts future demand and per-job resource needs.

Predict returns the best available estimate for a job class: a trusted
Resource Profile's p95 statistics if the class has accumulated
minSamples completions, else a k-nearest-neighbours match over recorded
job features (resource.go), else the profile's untrusted mean, else
package defaults.

RecordCompletion is the training path: every completed job updates the
class's Resource Profile and the k-NN training set, and checks any prior
prediction for accuracy (within 20% counts as accurate).

ObserveDemand/DemandForecast drive the aggregate demand model
(demand.go): Holt-style exponential smoothing with trend and hourly
seasonality, producing one forecast point per hour with linearly
decaying confidence. BurstHint exposes the anomaly-interval burst
predictor (anomaly.go).

The Forecaster is the sole writer of Resource Profiles (spec.md §5);
its reader, the Orchestrator (for admission, through Predict), always sees
a complete profile snapshot, never a partial update.
*/
package forecaster

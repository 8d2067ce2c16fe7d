// Package apavital polls the Apavital water utility API and publishes the
// meter readings as sensors.
//
// # Architecture
//
// The service is structured into several key packages:
//   - api: HTTP client for the get_usage endpoint
//   - coordinator: update cycle, daily delta and token handling
//   - sensors: entity catalogue and read accessors
//   - grpc: gRPC sensor service and health checking
//   - httpapi: HTTP routes for sensors, diagnostics and metrics
//   - homeassistant: MQTT discovery and state publishing
//   - history: optional reading history in PostgreSQL
//   - scheduler: periodic polling
//
// Key Features
//
//   - Daily Delta:
//     Each cycle subtracts the previous index from the current one. A
//     decreasing index (meter swap or correction) yields 0.
//
//   - Token Expiry:
//     A 401 from the provider marks every sensor unavailable and pauses
//     polling until a new token is accepted through UpdateToken.
//
//   - Consistency:
//     All sensor values are read from a single snapshot, never a mix of
//     two cycles.
//
// Example Usage
//
//	client := grpc.NewSensorServiceClient(conn)
//	resp, err := client.GetSensor(ctx, wrapperspb.String("water_daily"))
//
// For more information about specific packages, see their respective
// documentation.
package apavital

/*
Package types defines the shared domain model of the edge agent.

The agent manages a single router against a single control plane. The types
here are the vocabulary every component speaks:

  - ConnectivityState: derived from the three status LEDs, never persisted
  - DeviceIdentity: serial and board serial, read once per pass
  - NodeConfig: the structured tunnel endpoint, keyed by UUID in the node store
  - ArtifactDescriptor and ScheduleTable: the desired state the reconciler
    converges local files towards
  - PassRecord: one journal entry per invocation

Types carry no behaviour beyond small derivations such as
ConnectivityState.VPNFlag.
*/
package types

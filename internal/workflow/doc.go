// Package workflow runs the workers that move jobs through the pipeline.
//
// A Worker is bound to one worker-bound state and delegates the actual work
// to a stage.Provider. The Manager runs one lane per worker plus a release
// lane that moves approved jobs into UPLOADING when the publish throttle
// allows it. Mutual exclusion between lanes, and between processes, comes
// from the job store's conditional updates; claims are leases that expire
// after workflow.claim_timeout.
//
// Stop is cooperative: lanes finish the call in flight and exit before the
// next one. Provider calls never see a cancelled context because of Stop.
package workflow

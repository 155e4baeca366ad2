/*
Package simsched turns operator approved simulation requests into simulation runs.

A request is the body of an issue created from the simulation issue form.
[ParseForm] splits such a body into its sections, which are then resolved into a [Matrix] by [Expander.Expand].
Every field of the form has a default, so a body of any shape results in a valid matrix.
The node count and duration fields may list several comma separated values, for which every combination gets run.

A matrix is run by a [Dispatcher], which hands every configuration to a [JobExecutor] in matrix order,
while never having more jobs active than the parallelism requested by the issue.
Once all slots are taken, the dispatcher waits for the oldest active job to finish before starting the next one.

The steps are tied together by a [Pipeline], which additionally asks a [Discoverer] for an approved request:

	pipeline := simsched.Pipeline{
		Discoverer: finder,
		Executor:   executor,
	}
	summary := pipeline.Run(ctx, "vacp2p/vaclab", simsched.Credentials{Token: token})
	if err := summary.Err(); err != nil {
		// At least one configuration failed
	}

The returned [Summary] holds exactly one [Result] per configuration, in matrix order.
*/
package simsched

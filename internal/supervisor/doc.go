// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

/*
Package supervisor runs the long-lived parts of the daemons under suture v4.

The tree has two layers so a failing publisher cannot take ingestion down
with it:

	RootSupervisor ("edcompanion")
	├── WorkSupervisor ("work-layer")
	│   ├── feed.Client        (eddn-listener)
	│   └── goals.Loop         (cg-watcher -loop)
	└── MessagingSupervisor ("messaging-layer")
	    └── services.CloserService (NATS publisher, when enabled)

Crashed services restart with suture's failure decay and backoff, tuned by
the supervisor section of the configuration. Supervisor events are logged
through sutureslog into the zerolog stream:

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	tree.AddWorkService(client)
	err = tree.Serve(ctx)
*/
package supervisor

// Package fixtures seeds the in-memory feature and limit stores from YAML,
// for local development and tests without Postgres.
//
//	features:
//	  - project: proj
//	    key: new-checkout
//	    type: percentage
//	    rules:
//	      - environment: prod
//	        type: percentage
//	        value: {percentage: 25}
//	entitlements:
//	  - plan: pro
//	    feature: proj:new-checkout
//	limits:
//	  - environment: prod
//	    metric: api_calls
//	    type: count
//	    value: 10000
//	    period: month
//	    enforcement: hard
package fixtures

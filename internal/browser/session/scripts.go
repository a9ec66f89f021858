// internal/browser/session/scripts.go
package session

import (
	"fmt"
	"time"
)

// stabilityTemplate resolves true once the document has gone %[1]d ms without
// a DOM mutation and %[2]d ms without a finished resource load, or false after
// %[3]d ms.
const stabilityTemplate = `new Promise((resolve) => {
	const domIdle = %[1]d, netIdle = %[2]d, maxWait = %[3]d;
	const start = performance.now();
	let lastMutation = start;
	const lastResource = () => {
		const entries = performance.getEntriesByType('resource');
		if (!entries.length) return 0;
		return entries[entries.length - 1].responseEnd;
	};
	const observer = new MutationObserver(() => { lastMutation = performance.now(); });
	observer.observe(document.documentElement || document, {
		childList: true, subtree: true, attributes: true, characterData: true,
	});
	const done = (ok) => { observer.disconnect(); clearInterval(timer); resolve(ok); };
	const timer = setInterval(() => {
		const now = performance.now();
		if (now - start >= maxWait) { done(false); return; }
		if (document.readyState !== 'complete') return;
		if (now - lastMutation >= domIdle && now - lastResource() >= netIdle) done(true);
	}, 50);
})`

func stabilityScript(networkIdle, domIdle, timeout time.Duration) string {
	return fmt.Sprintf(stabilityTemplate, domIdle.Milliseconds(), networkIdle.Milliseconds(), timeout.Milliseconds())
}

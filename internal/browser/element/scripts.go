// internal/browser/element/scripts.go
package element

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// Function declarations passed to Runtime.callFunctionOn. `this` is the target node.
const (
	scriptClick = `function() { this.click(); }`

	scriptFocus = `function() { this.focus(); }`

	scriptPointerEvents = `function() {
	return window.getComputedStyle(this).pointerEvents;
}`

	scriptBoundingRect = `function() {
	const r = this.getBoundingClientRect();
	if (!r || !r.width || !r.height) return null;
	return [r.left, r.top, r.right, r.top, r.right, r.bottom, r.left, r.bottom];
}`

	scriptScrollIntoView = `function() {
	this.scrollIntoView({behavior: 'instant', block: 'center', inline: 'center'});
}`

	scriptClear = `function() {
	const editable = this.isContentEditable === true ||
		this.getAttribute('contenteditable') === 'true' ||
		this.getAttribute('contenteditable') === '';
	if (editable) {
		while (this.firstChild) this.removeChild(this.firstChild);
		this.textContent = '';
		this.focus();
		const sel = window.getSelection();
		const range = document.createRange();
		range.setStart(this, 0);
		range.setEnd(this, 0);
		sel.removeAllRanges();
		sel.addRange(range);
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return {cleared: true, method: 'contenteditable', remaining: this.textContent};
	}
	if (this.value !== undefined) {
		try { this.select(); } catch (e) {}
		this.value = '';
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return {cleared: true, method: 'value', remaining: this.value};
	}
	return {cleared: false, method: 'none', remaining: ''};
}`
)

// hitTestScript checks what element sits at (x, y) relative to `this`.
func hitTestScript(x, y float64) string {
	return fmt.Sprintf(`function() {
	const hit = document.elementFromPoint(%g, %g);
	if (!hit) return {ok: false, interceptor: 'no element at point'};
	if (this === hit || this.contains(hit) || hit.contains(this)) return {ok: true, interceptor: ''};
	const tag = hit.tagName.toLowerCase();
	const id = hit.id ? '#' + hit.id : '';
	const cls = (typeof hit.className === 'string' && hit.className.trim()) ? '.' + hit.className.trim().split(/\s+/)[0] : '';
	return {ok: false, interceptor: tag + id + cls};
}`, x, y)
}

// selectOptionScript selects the option whose value or text equals value.
func selectOptionScript(value string) string {
	return fmt.Sprintf(`function() {
	const value = %s;
	if (this.tagName !== 'SELECT') return {error: 'not a select element'};
	for (const opt of this.options) {
		if (opt.value === value || opt.text === value) {
			opt.selected = true;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
			return {text: opt.text};
		}
	}
	return {error: 'option not found: ' + value};
}`, jsonEncode(value))
}

// jsonEncode renders v as a JavaScript literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

type hitTestResult struct {
	OK          bool   `json:"ok"`
	Interceptor string `json:"interceptor"`
}

type clearResult struct {
	Cleared   bool   `json:"cleared"`
	Method    string `json:"method"`
	Remaining string `json:"remaining"`
}

type selectResult struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

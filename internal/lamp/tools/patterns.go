package tools

// Pattern is a named, reusable rule-authoring template the agent can
// retrieve via getPattern (spec.md §4.G), adapted from
// original_source/raspi/patterns/library.py's PATTERNS catalogue —
// rewritten as example Rule literals instead of Python format-string
// templates.
type Pattern struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	WhenToUse   []string `json:"when_to_use"`
	Example     string   `json:"example"`
}

var patternLibrary = map[string]Pattern{
	"counter": {
		Name:        "counter",
		Description: "Temporary behavior that reverts to a base state after N occurrences of an event.",
		WhenToUse:   []string{"next N clicks", "for N times, then back to normal", "temporary behavior"},
		Example: `rules: [
  {from:"*", on:"button_click", to:"random_color", condition:"getData('counter') == null", action:"setData('counter', 3)"},
  {from:"random_color", on:"button_click", to:"random_color", condition:"getData('counter') > 0", action:"setData('counter', getData('counter') - 1)"},
  {from:"random_color", on:"button_click", to:"off", condition:"getData('counter') == 0", action:"setData('counter', null)"}
]`,
	},
	"toggle": {
		Name:        "toggle",
		Description: "Two states that flip back and forth on the same event.",
		WhenToUse:   []string{"turn on/off", "flip between A and B"},
		Example: `rules: [
  {from:"off", on:"button_click", to:"on"},
  {from:"on", on:"button_click", to:"off"}
]`,
	},
	"cycle": {
		Name:        "cycle",
		Description: "Rotate through several states in a fixed order on the same event.",
		WhenToUse:   []string{"cycle through colors", "next pattern each press"},
		Example: `rules: [
  {from:"red", on:"button_click", to:"green"},
  {from:"green", on:"button_click", to:"blue"},
  {from:"blue", on:"button_click", to:"red"}
]`,
	},
	"hold_release": {
		Name:        "hold_release",
		Description: "Hold an input to activate a state, release to deactivate.",
		WhenToUse:   []string{"hold for effect", "press and hold"},
		Example: `rules: [
  {from:"*", on:"button_hold", to:"alert", priority:100},
  {from:"alert", on:"button_release", to:"off"}
]`,
	},
	"timer": {
		Name:        "timer",
		Description: "Fire once after a fixed delay, optionally removing itself afterward.",
		WhenToUse:   []string{"after N seconds", "auto turn off"},
		Example:     `rules: [{from:"*", on:"timer", to:"off", trigger_config:{delay_ms:30000, auto_cleanup:true}}]`,
	},
	"schedule": {
		Name:        "schedule",
		Description: "Fire at a specific time of day, optionally every day.",
		WhenToUse:   []string{"every morning at 7am", "at sunset"},
		Example:     `rules: [{from:"*", on:"schedule", to:"sunrise", trigger_config:{hour:7, minute:0, repeat_daily:true}}]`,
	},
	"data_reactive": {
		Name:        "data_reactive",
		Description: "React to a periodically polled data source's fired event.",
		WhenToUse:   []string{"react to weather", "react to stock price"},
		Example: `createDataSource({name:"weather", tool:"weather", interval_ms:600000,
  store_mapping:{"current.temp_c":"outside_temp"}, fires_transition:"weather_updated"})
rules: [{from:"*", on:"weather_updated", to:"warm", condition:"getData('outside_temp') > 25"}]`,
	},
}

// docTopics answers getDocs(topic) with short reference text the agent can
// use while authoring rules/pipelines: the sandbox grammar, the error
// taxonomy, the tool list and the preset API names.
var docTopics = map[string]string{
	"sandbox": "Expression grammar: identifiers, numbers, strings, + - * / % " +
		"comparisons, and/or/not. Bindings: getData(key)/setData(key,value), " +
		"getTime()/time, r/g/b/t/frame (colour flavor only), random(), " +
		"sin/cos/tan/abs/floor/ceil/round/sqrt/min/max/pow. A bare identifier " +
		"naming a variable-store key reads that variable; referencing any " +
		"other identifier is a sandbox violation: guards become false, " +
		"colours fall back to 0, actions no-op.",
	"errors": "SandboxViolation, UnknownState, IllegalOperation, Timeout, " +
		"FetchError, PipelineDepthExceeded, NotFound. Errors never unwind " +
		"through the event lane: a failing guard is false, a failing action " +
		"is logged and the transition proceeds, a failing pipeline step " +
		"aborts only that pipeline run.",
	"tools": "Information: getPattern, getStates, getRules, getVariables, " +
		"listAPIs, listMemory, listPipelines, getDocs. State: createState, " +
		"deleteState, setState. Rules: appendRules, deleteRules. Variables: " +
		"setVariable. External: fetchAPI, defineTool, callTool, " +
		"createDataSource, triggerDataSource. Memory: remember, recall, " +
		"forgetMemory. Pipelines: definePipeline, runPipeline, " +
		"deletePipeline. Interaction: askUser. Completion: done.",
	"apis": "Preset API names: weather, stock, crypto, sun, air_quality, " +
		"time, fear_greed, github_repo, random. Unknown names return " +
		"{success:false, error:\"unknown api\"}.",
}

func getPattern(name string) (Pattern, bool) {
	p, ok := patternLibrary[name]
	return p, ok
}

func getDoc(topic string) (string, bool) {
	d, ok := docTopics[topic]
	return d, ok
}
